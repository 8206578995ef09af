package adapter

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/simulations"
	"github.com/elys-network/yieldvault/internal/types"
)

type liquidityFixture struct {
	adapter  *LiquidityAdapter
	token    *simulations.Token
	poolA    *simulations.LiquidityPool
	poolB    *simulations.LiquidityPool
	idA, idB types.ProviderID
	recorder *events.Recorder
}

func newLiquidityFixture(t *testing.T, options PooledOptions) *liquidityFixture {
	t.Helper()
	ctx := context.Background()
	token := simulations.NewToken("USDC", 6)
	recorder := events.NewRecorder()
	a, err := NewLiquidityAdapter(testConfig(token, recorder), options)
	require.NoError(t, err)

	f := &liquidityFixture{
		adapter:  a,
		token:    token,
		poolA:    simulations.NewLiquidityPool("poolA", token, 5000, 300),
		poolB:    simulations.NewLiquidityPool("poolB", token, 8000, 600),
		recorder: recorder,
	}
	f.idA, err = a.AddPool(ctx, ownerAddr, f.poolA, 300, 30, types.ProviderWeightedPool)
	require.NoError(t, err)
	f.idB, err = a.AddPool(ctx, ownerAddr, f.poolB, 600, 60, "")
	require.NoError(t, err)
	return f
}

func (f *liquidityFixture) positions() []string {
	var out []string
	for _, rec := range f.adapter.Providers() {
		out = append(out, rec.Position.String())
	}
	return out
}

func TestLiquidityAddPool(t *testing.T) {
	ctx := context.Background()
	f := newLiquidityFixture(t, PooledOptions{MaxSingleProviderBps: 6000})

	added := f.recorder.OfType(events.PoolAdded)
	require.Len(t, added, 2)
	assert.True(t, added[0].(*events.ProviderAddedData).IsPool)

	recs := f.adapter.Providers()
	assert.Equal(t, []uint64{5000, 5000}, recs[0].PoolWeights)
	assert.Equal(t, types.ProviderWeightedPool, recs[1].Kind)
	assert.True(t, recs[0].EntryPrice.Equal(sdkmath.LegacyOneDec()))

	_, err := f.adapter.AddPool(ctx, ownerAddr, simulations.NewLiquidityPool("poolC", f.token, 5000, 1), 1, 1, types.ProviderLiquidStake)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = f.adapter.AddPool(ctx, ownerAddr, f.poolA, 1, 1, types.ProviderStablePool)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestLiquidityDefaultCapLeavesRemainderIdle(t *testing.T) {
	ctx := context.Background()
	f := newLiquidityFixture(t, PooledOptions{})
	fundVault(t, f.token, 10_000)

	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))
	assert.Equal(t, []string{"4000", "4000"}, f.positions())
	assert.Equal(t, "2000", balanceOf(t, f.token, adapterAddr))

	total, err := f.adapter.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10000", total.String())
}

func TestLiquidityImpermanentLoss(t *testing.T) {
	ctx := context.Background()
	f := newLiquidityFixture(t, PooledOptions{MaxSingleProviderBps: 6000})
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))
	assert.Equal(t, []string{"5000", "5000"}, f.positions())

	require.NoError(t, f.poolA.SetPrice(sdkmath.LegacyNewDec(4)))

	loss, err := f.adapter.CalculateImpermanentLoss(ctx, f.idA)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), loss)

	deviation, err := f.adapter.GetPriceDeviation(ctx, f.idA)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000), deviation)

	loss, err = f.adapter.CalculateImpermanentLoss(ctx, f.idB)
	require.NoError(t, err)
	assert.Zero(t, loss)

	// A 50/50 pool doubles in asset terms when the paired price quadruples.
	total, err := f.adapter.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15000", total.String())

	_, err = f.adapter.CalculateImpermanentLoss(ctx, 42)
	assert.ErrorIs(t, err, types.ErrProviderNotFound)
}

func TestLiquidityHarvestCompoundsFees(t *testing.T) {
	ctx := context.Background()
	f := newLiquidityFixture(t, PooledOptions{MaxSingleProviderBps: 6000})
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	f.poolB.AccrueFees(sdkmath.NewInt(100))
	yield, err := f.adapter.Harvest(ctx, vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, "100", yield.String())
	assert.Equal(t, []string{"5050", "5050"}, f.positions())

	harvested := f.recorder.Last(events.Harvested).(*events.HarvestedData)
	assert.Equal(t, "test-adapter", harvested.Source)

	total, err := f.adapter.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10100", total.String())
}

func TestLiquidityRebalanceEmitsPoolEvent(t *testing.T) {
	ctx := context.Background()
	f := newLiquidityFixture(t, PooledOptions{MaxSingleProviderBps: 6000})
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	require.NoError(t, f.adapter.DeactivateProvider(ownerAddr, f.idB))
	require.NoError(t, f.adapter.Rebalance(ctx, vaultAddr))

	// Only pool A is eligible and it is capped at 60%.
	assert.Equal(t, []string{"6000", "0"}, f.positions())
	assert.Equal(t, "4000", balanceOf(t, f.token, adapterAddr))

	rebalanced := f.recorder.Last(events.PoolRebalanced).(*events.ProviderRebalancedData)
	assert.True(t, rebalanced.IsPool)
	assert.Equal(t, uint64(6000), rebalanced.Allocations[f.idA])
}
