package adapter

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/simulations"
	"github.com/elys-network/yieldvault/internal/types"
)

type stakingFixture struct {
	adapter   *StakingAdapter
	token     *simulations.Token
	providers []*simulations.StakingProvider
	ids       []types.ProviderID
	recorder  *events.Recorder
}

// newStakingFixture registers four providers. The last one is riskier than the default tolerance.
func newStakingFixture(t *testing.T) *stakingFixture {
	t.Helper()
	ctx := context.Background()
	token := simulations.NewToken("USDC", 6)
	recorder := events.NewRecorder()
	a, err := NewStakingAdapter(testConfig(token, recorder), PooledOptions{})
	require.NoError(t, err)

	f := &stakingFixture{adapter: a, token: token, recorder: recorder}
	specs := []struct {
		addr types.Address
		apy  uint64
		risk uint64
	}{
		{"p1", 1000, 20},
		{"p2", 800, 40},
		{"p3", 600, 60},
		{"p4", 2000, 90},
	}
	for _, s := range specs {
		p := simulations.NewStakingProvider(s.addr, token, s.apy)
		id, err := a.AddProvider(ctx, ownerAddr, p, s.apy, s.risk, types.ProviderLiquidStake)
		require.NoError(t, err)
		f.providers = append(f.providers, p)
		f.ids = append(f.ids, id)
	}
	return f
}

func (f *stakingFixture) positions() []string {
	var out []string
	for _, rec := range f.adapter.Providers() {
		out = append(out, rec.Position.String())
	}
	return out
}

func (f *stakingFixture) allocations() []uint64 {
	var out []uint64
	for _, rec := range f.adapter.Providers() {
		out = append(out, rec.AllocationBps)
	}
	return out
}

func TestStakingAllocationRespectsCapAndTolerance(t *testing.T) {
	f := newStakingFixture(t)
	assert.Equal(t, []uint64{4000, 4000, 2000, 0}, f.allocations())
	assert.Len(t, f.recorder.OfType(events.ProviderAdded), 4)

	require.NoError(t, f.adapter.SetRiskTolerance(ownerAddr, 100))
	for _, bps := range f.allocations() {
		assert.LessOrEqual(t, bps, uint64(types.DefaultMaxSingleProviderBps))
	}

	err := f.adapter.SetRiskTolerance(ownerAddr, 101)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	err = f.adapter.SetRiskTolerance(mallory, 10)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestStakingAddProviderValidation(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)

	_, err := f.adapter.AddProvider(ctx, ownerAddr, f.providers[0], 100, 10, types.ProviderStaking)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	fresh := simulations.NewStakingProvider("p5", f.token, 100)
	_, err = f.adapter.AddProvider(ctx, mallory, fresh, 100, 10, types.ProviderStaking)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.adapter.AddProvider(ctx, ownerAddr, fresh, 100, 101, types.ProviderStaking)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = f.adapter.AddProvider(ctx, ownerAddr, fresh, 100, 10, types.ProviderWeightedPool)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestStakingDepositSpreadsCapital(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)

	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))
	assert.Equal(t, []string{"4000", "4000", "2000", "0"}, f.positions())

	total, err := f.adapter.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10000", total.String())

	apy, err := f.adapter.CurrentAPY(ctx)
	require.NoError(t, err)
	// (4000*1000 + 4000*800 + 2000*600) / 10000
	assert.Equal(t, uint64(840), apy)
}

func TestStakingDepositWithoutEligibleProviders(t *testing.T) {
	ctx := context.Background()
	token := simulations.NewToken("USDC", 6)
	a, err := NewStakingAdapter(testConfig(token, nil), PooledOptions{})
	require.NoError(t, err)
	fundVault(t, token, 100)

	err = a.Deposit(ctx, vaultAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = a.AddProvider(ctx, ownerAddr, simulations.NewStakingProvider("risky", token, 100), 100, 95, "")
	require.NoError(t, err)
	err = a.Deposit(ctx, vaultAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, "100", balanceOf(t, token, vaultAddr))
}

func TestStakingDepositUnwindsOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)

	f.providers[2].FailOn(simulations.OpStake, errors.New("validator set full"))
	err := f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000))
	assert.ErrorIs(t, err, types.ErrExternalCall)

	assert.Equal(t, []string{"0", "0", "0", "0"}, f.positions())
	assert.Equal(t, "10000", balanceOf(t, f.token, vaultAddr))
}

func TestStakingHarvestCompounds(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	f.providers[0].AccrueRate(100)
	f.providers[1].AddRewards(adapterAddr, sdkmath.NewInt(100))

	yield, err := f.adapter.Harvest(ctx, vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, "140", yield.String())

	rates := f.recorder.OfType(events.ExchangeRateUpdated)
	require.Len(t, rates, 1)
	assert.Equal(t, f.ids[0], rates[0].(*events.ExchangeRateData).ProviderID)

	// 100 of rewards went back in 40/40/20; p1 stakes 40 at 1.01 and mints 39 shares.
	assert.Equal(t, []string{"4039", "4040", "2020", "0"}, f.positions())
	total, err := f.adapter.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10139", total.String())

	yield, err = f.adapter.Harvest(ctx, vaultAddr)
	require.NoError(t, err)
	assert.True(t, yield.IsZero())
}

func TestStakingHarvestFailsWhenClaimFails(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	f.providers[0].AccrueRate(100)
	f.providers[1].FailOn(simulations.OpClaim, errors.New("claim paused"))
	_, err := f.adapter.Harvest(ctx, vaultAddr)
	assert.ErrorIs(t, err, types.ErrExternalCall)

	for _, rec := range f.adapter.Providers() {
		if rec.ID == f.ids[0] {
			assert.Equal(t, "4000", rec.Principal.String())
		}
	}
}

func TestStakingWithdrawSkipsFailingProvider(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	f.providers[1].FailOn(simulations.OpUnstake, errors.New("unbonding"))
	out, err := f.adapter.Withdraw(ctx, vaultAddr, sdkmath.NewInt(5000))
	require.NoError(t, err)
	assert.Equal(t, "5000", out.String())
	assert.Equal(t, "5000", balanceOf(t, f.token, vaultAddr))
	assert.Equal(t, []string{"0", "4000", "1000", "0"}, f.positions())
}

func TestStakingWithdrawFailsWhenNothingComesBack(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	for _, p := range f.providers {
		p.FailOn(simulations.OpUnstake, errors.New("halted"))
	}
	_, err := f.adapter.Withdraw(ctx, vaultAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrInsufficientLiquidity)
}

func TestStakingWithdrawAllReportsFailures(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	f.providers[2].FailOn(simulations.OpUnstake, errors.New("unbonding"))
	out, err := f.adapter.WithdrawAll(ctx, vaultAddr)
	assert.ErrorIs(t, err, types.ErrExternalCall)
	assert.Equal(t, "8000", out.String())
	assert.Equal(t, "8000", balanceOf(t, f.token, vaultAddr))
	assert.Equal(t, []string{"0", "0", "2000", "0"}, f.positions())
}

func TestStakingRebalanceFollowsAPY(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	fundVault(t, f.token, 10_000)
	require.NoError(t, f.adapter.Deposit(ctx, vaultAddr, sdkmath.NewInt(10_000)))

	require.NoError(t, f.adapter.SetProviderAPY(vaultAddr, f.ids[2], 5000))
	assert.Equal(t, []uint64{4000, 2000, 4000, 0}, f.allocations())

	require.NoError(t, f.adapter.Rebalance(ctx, ownerAddr))
	assert.Equal(t, []string{"4000", "2000", "4000", "0"}, f.positions())

	rebalanced := f.recorder.Last(events.ProviderRebalanced).(*events.ProviderRebalancedData)
	assert.Equal(t, uint64(4000), rebalanced.Allocations[f.ids[2]])

	err := f.adapter.Rebalance(ctx, mallory)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestStakingDeactivateProvider(t *testing.T) {
	f := newStakingFixture(t)
	require.NoError(t, f.adapter.DeactivateProvider(ownerAddr, f.ids[0]))
	assert.Equal(t, []uint64{0, 4000, 4000, 0}, f.allocations())

	require.NoError(t, f.adapter.ReactivateProvider(ownerAddr, f.ids[0]))
	assert.Equal(t, []uint64{4000, 4000, 2000, 0}, f.allocations())
	assert.Len(t, f.recorder.OfType(events.ProviderStatusChanged), 2)

	err := f.adapter.DeactivateProvider(ownerAddr, 99)
	assert.ErrorIs(t, err, types.ErrProviderNotFound)
}
