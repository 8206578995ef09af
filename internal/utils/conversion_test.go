package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulBps(t *testing.T) {
	assert.Equal(t, "7000", MulBps(sdkmath.NewInt(10_000), 7000).String())
	assert.Equal(t, "3", MulBps(sdkmath.NewInt(7), 5000).String()) // floor(3.5)
	assert.Equal(t, "0", MulBps(sdkmath.NewInt(10_000), 0).String())
	assert.Equal(t, "0", MulBps(sdkmath.Int{}, 100).String())
}

func TestBpsOf(t *testing.T) {
	assert.Equal(t, uint64(500), BpsOf(sdkmath.NewInt(50), sdkmath.NewInt(1000)))
	assert.Equal(t, uint64(500), BpsOf(sdkmath.NewInt(-50), sdkmath.NewInt(1000)))
	assert.Equal(t, uint64(0), BpsOf(sdkmath.NewInt(50), sdkmath.ZeroInt()))
}

func TestSumInts(t *testing.T) {
	sum := SumInts([]sdkmath.Int{sdkmath.NewInt(1), {}, sdkmath.NewInt(-3), sdkmath.NewInt(10)})
	assert.Equal(t, "8", sum.String())
}

func TestPow10(t *testing.T) {
	assert.Equal(t, "1", Pow10(0).String())
	assert.Equal(t, "1000000000000", Pow10(12).String())
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_234_567), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.234567, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}
