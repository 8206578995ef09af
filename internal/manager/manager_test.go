package manager

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/types"
)

const owner types.Address = "owner"

func newManager(t *testing.T) (*StrategyManager, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	m, err := New(owner, DefaultConfig(), rec, zerolog.Nop())
	require.NoError(t, err)
	return m, rec
}

// addTwo registers the 60/40 pair used across these tests.
func addTwo(t *testing.T, m *StrategyManager) (types.StrategyID, types.StrategyID) {
	t.Helper()
	a, err := m.AddStrategy(owner, types.StrategyParams{Name: "lending", Weight: 6000, RiskScore: 20, MinAllocationBps: 1000, MaxAllocationBps: 7000})
	require.NoError(t, err)
	b, err := m.AddStrategy(owner, types.StrategyParams{Name: "staking", Weight: 4000, RiskScore: 30, MinAllocationBps: 1000, MaxAllocationBps: 6000})
	require.NoError(t, err)
	return a, b
}

func amounts(allocs []Allocation) []string {
	out := make([]string, len(allocs))
	for i, a := range allocs {
		out[i] = a.Amount.String()
	}
	return out
}

func TestAddStrategyValidation(t *testing.T) {
	m, _ := newManager(t)

	tests := []struct {
		name   string
		params types.StrategyParams
		msg    string
	}{
		{"zero weight", types.StrategyParams{Weight: 0, RiskScore: 20, MaxAllocationBps: 5000}, "weight must be positive"},
		{"risk above max", types.StrategyParams{Weight: 1000, RiskScore: 150, MaxAllocationBps: 5000}, "risk score too high"},
		{"min above max", types.StrategyParams{Weight: 1000, RiskScore: 20, MinAllocationBps: 4000, MaxAllocationBps: 3000}, "min allocation exceeds max allocation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddStrategy(owner, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalidParameter)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
	assert.Empty(t, m.Strategies())
}

func TestAddStrategyRequiresOwner(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddStrategy("mallory", types.StrategyParams{Weight: 1, MaxAllocationBps: 1})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestAddStrategyInitialState(t *testing.T) {
	m, rec := newManager(t)
	a, b := addTwo(t, m)
	assert.Equal(t, types.StrategyID(1), a)
	assert.Equal(t, types.StrategyID(2), b)

	s, err := m.Strategy(a)
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	assert.Equal(t, uint64(types.InitialPerformanceScore), s.PerformanceScore)
	assert.Equal(t, 0, s.History.Len())
	assert.Len(t, rec.OfType(events.StrategyAdded), 2)
}

func TestActiveSetCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveStrategies = 2
	m, err := New(owner, cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	a, _ := addTwo(t, m)

	_, err = m.AddStrategy(owner, types.StrategyParams{Weight: 1, MaxAllocationBps: 100})
	assert.ErrorIs(t, err, types.ErrRegistryFull)

	require.NoError(t, m.DeactivateStrategy(owner, a))
	_, err = m.AddStrategy(owner, types.StrategyParams{Weight: 1, MaxAllocationBps: 100})
	require.NoError(t, err)
	assert.ErrorIs(t, m.ReactivateStrategy(owner, a), types.ErrRegistryFull)
}

func TestOptimalAllocationTwoStrategies(t *testing.T) {
	m, _ := newManager(t)
	addTwo(t, m)

	total := sdkmath.NewInt(10_000)
	allocs, err := m.CalculateOptimalAllocation(total)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	sum := allocs[0].Amount.Add(allocs[1].Amount)
	assert.True(t, sum.Equal(total))
	assert.True(t, allocs[0].Amount.GTE(sdkmath.NewInt(1000)) && allocs[0].Amount.LTE(sdkmath.NewInt(7000)))
	assert.True(t, allocs[1].Amount.GTE(sdkmath.NewInt(1000)) && allocs[1].Amount.LTE(sdkmath.NewInt(6000)))
	// no APY yet, so the configured weights drive the split
	assert.Equal(t, []string{"6000", "4000"}, amounts(allocs))
}

func TestOptimalAllocationUsesScores(t *testing.T) {
	m, _ := newManager(t)
	a, b := addTwo(t, m)
	require.NoError(t, m.UpdateAPY(owner, a, 300))
	require.NoError(t, m.UpdateAPY(owner, b, 900))

	// scores: 300*50/20 = 750 and 900*50/30 = 1500; the second strategy leads until its 60% cap
	allocs, err := m.CalculateOptimalAllocation(sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, []string{"4000", "6000"}, amounts(allocs))
}

func TestOptimalAllocationRiskTolerance(t *testing.T) {
	m, rec := newManager(t)
	addTwo(t, m)

	err := m.SetRiskTolerance(owner, 150)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	assert.ErrorIs(t, m.SetRiskTolerance("mallory", 10), types.ErrUnauthorized)

	require.NoError(t, m.SetRiskTolerance(owner, 25))
	last := rec.Last(events.RiskToleranceUpdated).(*events.ParameterUpdatedData)
	assert.Equal(t, uint64(50), last.Old)
	assert.Equal(t, uint64(25), last.New)

	allocs, err := m.CalculateOptimalAllocation(sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, []string{"7000", "3000"}, amounts(allocs))

	// nothing eligible: fall back to weights of every active strategy
	require.NoError(t, m.SetRiskTolerance(owner, 0))
	allocs, err = m.CalculateOptimalAllocation(sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, []string{"6000", "4000"}, amounts(allocs))
}

func TestOptimalAllocationOverConstrained(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddStrategy(owner, types.StrategyParams{Weight: 5000, RiskScore: 10, MinAllocationBps: 8000, MaxAllocationBps: 9000})
	require.NoError(t, err)
	_, err = m.AddStrategy(owner, types.StrategyParams{Weight: 5000, RiskScore: 10, MinAllocationBps: 4000, MaxAllocationBps: 9000})
	require.NoError(t, err)

	allocs, err := m.CalculateOptimalAllocation(sdkmath.NewInt(1200))
	require.NoError(t, err)
	assert.Equal(t, []string{"800", "400"}, amounts(allocs))
}

func TestOptimalAllocationNoActiveStrategies(t *testing.T) {
	m, rec := newManager(t)
	addTwo(t, m)
	require.NoError(t, m.EmergencyStop(owner))
	assert.NotNil(t, rec.Last(events.EmergencyStopped))

	allocs, err := m.CalculateOptimalAllocation(sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestUpdateAPYConsistencyNeverBelowBaseline(t *testing.T) {
	m, _ := newManager(t)
	a, _ := addTwo(t, m)

	for i := 0; i < 100; i++ {
		require.NoError(t, m.UpdateAPY(owner, a, 500))
		s, err := m.Strategy(a)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.PerformanceScore, uint64(types.InitialPerformanceScore))
	}
	s, _ := m.Strategy(a)
	assert.Equal(t, uint64(types.MaxPerformanceScore), s.PerformanceScore)
	assert.Equal(t, types.DefaultHistoryCapacity, s.History.Len())
	assert.Equal(t, uint64(500), s.LastAPY)
}

func TestUpdateAPYVolatilityLowersScore(t *testing.T) {
	m, _ := newManager(t)
	a, _ := addTwo(t, m)
	for _, apy := range []uint64{100, 900, 100, 900} {
		require.NoError(t, m.UpdateAPY(owner, a, apy))
	}
	s, _ := m.Strategy(a)
	assert.Equal(t, uint64(44), s.PerformanceScore)
}

func TestUpdateAPYOperator(t *testing.T) {
	m, _ := newManager(t)
	a, _ := addTwo(t, m)
	assert.ErrorIs(t, m.UpdateAPY("vault", a, 100), types.ErrUnauthorized)
	require.NoError(t, m.SetOperator(owner, "vault"))
	assert.NoError(t, m.UpdateAPY("vault", a, 100))
	assert.ErrorIs(t, m.UpdateAPY(owner, 99, 100), types.ErrStrategyNotFound)
}

func TestShouldRebalanceThreshold(t *testing.T) {
	m, _ := newManager(t)
	a, b := addTwo(t, m)

	tests := []struct {
		name    string
		current map[types.StrategyID]sdkmath.Int
		want    bool
	}{
		{"at optimal", map[types.StrategyID]sdkmath.Int{a: sdkmath.NewInt(6000), b: sdkmath.NewInt(4000)}, false},
		{"exactly at threshold", map[types.StrategyID]sdkmath.Int{a: sdkmath.NewInt(6500), b: sdkmath.NewInt(3500)}, false},
		{"above threshold", map[types.StrategyID]sdkmath.Int{a: sdkmath.NewInt(6600), b: sdkmath.NewInt(3400)}, true},
		{"nothing invested", map[types.StrategyID]sdkmath.Int{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ShouldRebalance(tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateRebalanceAmounts(t *testing.T) {
	m, _ := newManager(t)
	a, b := addTwo(t, m)
	current := map[types.StrategyID]sdkmath.Int{a: sdkmath.NewInt(8000), b: sdkmath.NewInt(2000)}

	deltas, err := m.CalculateRebalanceAmounts(current, sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, []string{"-2000", "2000"}, amounts(deltas))

	// a paused strategy is drained entirely
	require.NoError(t, m.PauseStrategy(owner, b))
	deltas, err = m.CalculateRebalanceAmounts(current, sdkmath.NewInt(10_000))
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, a, deltas[0].StrategyID)
	assert.Equal(t, "2000", deltas[0].Amount.String())
	assert.Equal(t, b, deltas[1].StrategyID)
	assert.Equal(t, "-2000", deltas[1].Amount.String())

	should, err := m.ShouldRebalance(current)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestRiskMetrics(t *testing.T) {
	m, _ := newManager(t)
	a, _ := addTwo(t, m)

	sharpe, err := m.CalculateSharpeRatio(a)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sharpe)

	for _, apy := range []uint64{400, 500, 600} {
		require.NoError(t, m.UpdateAPY(owner, a, apy))
	}
	sharpe, err = m.CalculateSharpeRatio(a)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, sharpe, 1e-9)

	rar, err := m.CalculateRiskAdjustedReturn(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), rar) // 600 * 100 / 20
}

func TestDeactivateKeepsHistory(t *testing.T) {
	m, rec := newManager(t)
	a, _ := addTwo(t, m)
	require.NoError(t, m.UpdateAPY(owner, a, 700))
	require.NoError(t, m.DeactivateStrategy(owner, a))
	require.NoError(t, m.ReactivateStrategy(owner, a))

	s, _ := m.Strategy(a)
	assert.True(t, s.IsActive)
	assert.Equal(t, []uint64{700}, s.History.Values())
	assert.Len(t, rec.OfType(events.StrategyDeactivated), 1)
	assert.Len(t, rec.OfType(events.StrategyReactivated), 1)
}

func TestUpdateAndRemoveStrategy(t *testing.T) {
	m, _ := newManager(t)
	a, b := addTwo(t, m)

	require.NoError(t, m.UpdateWeight(owner, a, 2000))
	s, _ := m.Strategy(a)
	assert.Equal(t, uint64(2000), s.Weight)
	assert.Equal(t, "lending", s.Name)

	err := m.UpdateStrategy(owner, a, types.StrategyParams{Weight: 1, MinAllocationBps: 5000, MaxAllocationBps: 100})
	assert.ErrorContains(t, err, "min allocation exceeds max allocation")

	require.NoError(t, m.RemoveStrategy(owner, a))
	_, err = m.Strategy(a)
	assert.ErrorIs(t, err, types.ErrStrategyNotFound)
	remaining := m.Strategies()
	require.Len(t, remaining, 1)
	assert.Equal(t, b, remaining[0].ID)
}

func TestSetRebalanceThreshold(t *testing.T) {
	m, _ := newManager(t)
	assert.ErrorIs(t, m.SetRebalanceThreshold(owner, 0), types.ErrInvalidParameter)
	require.NoError(t, m.SetRebalanceThreshold(owner, 1000))
	assert.Equal(t, uint64(1000), m.Config().RebalanceThresholdBps)
}
