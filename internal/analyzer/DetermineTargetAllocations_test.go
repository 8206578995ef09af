package analyzer

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/types"
)

func ints(values ...int64) []sdkmath.Int {
	out := make([]sdkmath.Int, len(values))
	for i, v := range values {
		out[i] = sdkmath.NewInt(v)
	}
	return out
}

func bound(min, max int64) Bound {
	return Bound{Min: sdkmath.NewInt(min), Max: sdkmath.NewInt(max)}
}

func sum(values []sdkmath.Int) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func strs(values []sdkmath.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func TestProportionalSplit(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []string
	}{
		{"even", 100, []int64{1, 1}, []string{"50", "50"}},
		{"largest remainder", 10, []int64{1, 1, 1}, []string{"4", "3", "3"}},
		{"zero weights split equally", 9, []int64{0, 0, 0}, []string{"3", "3", "3"}},
		{"weighted", 1000, []int64{6000, 4000}, []string{"600", "400"}},
		{"zero total", 0, []int64{1, 2}, []string{"0", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProportionalSplit(sdkmath.NewInt(tt.total), ints(tt.weights...))
			assert.Equal(t, tt.want, strs(got))
		})
	}
}

func TestWaterFillRespectsBounds(t *testing.T) {
	weights := ints(90, 5, 5)
	bounds := []Bound{bound(0, 500), bound(100, 1000), bound(100, 1000)}

	got, err := WaterFill(sdkmath.NewInt(1000), weights, bounds)
	require.NoError(t, err)
	assert.Equal(t, []string{"500", "250", "250"}, strs(got))
}

func TestWaterFillLocksMinimums(t *testing.T) {
	weights := ints(98, 1, 1)
	bounds := []Bound{bound(0, 1000), bound(200, 1000), bound(100, 1000)}

	got, err := WaterFill(sdkmath.NewInt(1000), weights, bounds)
	require.NoError(t, err)
	assert.Equal(t, []string{"700", "200", "100"}, strs(got))
}

func TestWaterFillInfeasible(t *testing.T) {
	_, err := WaterFill(sdkmath.NewInt(1000), ints(1, 1), []Bound{bound(0, 100), bound(0, 100)})
	assert.ErrorIs(t, err, types.ErrAllocationInfeasible)

	_, err = WaterFill(sdkmath.NewInt(100), ints(1, 1), []Bound{bound(80, 100), bound(80, 100)})
	assert.ErrorIs(t, err, types.ErrAllocationInfeasible)
}

func TestWaterFillRejectsInvertedBound(t *testing.T) {
	_, err := WaterFill(sdkmath.NewInt(100), ints(1), []Bound{bound(60, 50)})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestDetermineTargetAllocationsTwoStrategies(t *testing.T) {
	total := sdkmath.NewInt(10_000)
	bounds := []Bound{bound(1000, 7000), bound(1000, 6000)}

	got, err := DetermineTargetAllocations(total, ints(6000, 4000), bounds)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, sum(got).Equal(total))
	for i, b := range bounds {
		assert.True(t, got[i].GTE(b.Min), "entry %d below min", i)
		assert.True(t, got[i].LTE(b.Max), "entry %d above max", i)
	}
}

func TestDetermineTargetAllocationsOverConstrained(t *testing.T) {
	got, err := DetermineTargetAllocations(sdkmath.NewInt(100), ints(1, 1), []Bound{bound(90, 100), bound(30, 100)})
	require.NoError(t, err)
	assert.Equal(t, "100", sum(got).String())
	assert.Equal(t, []string{"75", "25"}, strs(got))
}

func TestDetermineTargetAllocationsUnderConstrained(t *testing.T) {
	got, err := DetermineTargetAllocations(sdkmath.NewInt(1000), ints(3, 1), []Bound{bound(0, 300), bound(0, 300)})
	require.NoError(t, err)
	assert.Equal(t, []string{"600", "400"}, strs(got))
}

func TestDetermineTargetAllocationsExactSumGrid(t *testing.T) {
	weights := ints(7, 13, 29, 1)
	bounds := []Bound{bound(0, 0), bound(0, 0), bound(0, 0), bound(0, 0)}
	for _, total := range []int64{0, 7, 99, 1001, 123_457, 9_999_999} {
		tot := sdkmath.NewInt(total)
		for i := range bounds {
			bounds[i] = Bound{Min: tot.MulRaw(int64(i + 1)).QuoRaw(20), Max: tot.MulRaw(4).QuoRaw(10)}
		}
		got, err := DetermineTargetAllocations(tot, weights, bounds)
		require.NoError(t, err)
		assert.True(t, sum(got).Equal(tot), "total %d", total)
		for i, b := range bounds {
			assert.True(t, got[i].GTE(b.Min) && got[i].LTE(b.Max), "total %d entry %d = %s", total, i, got[i])
		}
	}
}

func TestDetermineTargetAllocationsEmpty(t *testing.T) {
	got, err := DetermineTargetAllocations(sdkmath.NewInt(100), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
