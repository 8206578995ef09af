/*

This file contains the staking adapter: capital is spread over several liquid staking providers.
Yield arrives both as exchange rate appreciation of the shares held and as claimable rewards.

*/

package adapter

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
)

type StakingAdapter struct {
	pooled
}

var _ Strategy = (*StakingAdapter)(nil)

func NewStakingAdapter(cfg Config, options PooledOptions) (*StakingAdapter, error) {
	p, err := newPooled(cfg, options, false)
	if err != nil {
		return nil, err
	}
	return &StakingAdapter{pooled: p}, nil
}

// AddProvider registers a staking provider. The APY given is the initial observation; it is
// replaced by the provider's own figure on every harvest.
func (a *StakingAdapter) AddProvider(ctx context.Context, caller types.Address, provider protocol.StakingProvider, apyBps, riskScore uint64, kind types.ProviderKind) (types.ProviderID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if provider == nil {
		return 0, errors.Join(types.ErrInvalidParameter, errors.New("provider is required"))
	}
	switch kind {
	case types.ProviderStaking, types.ProviderLiquidStake:
	case "":
		kind = types.ProviderLiquidStake
	default:
		return 0, errors.Join(types.ErrInvalidParameter, fmt.Errorf("unsupported provider kind %q", kind))
	}
	rate, err := provider.ExchangeRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: exchange rate: %w", types.ErrExternalCall, err)
	}
	return a.addVenueLocked(caller, types.ProviderRecord{
		Kind:         kind,
		APY:          apyBps,
		RiskScore:    riskScore,
		ExchangeRate: rate,
	}, stakingVenue{provider: provider})
}

type stakingVenue struct {
	provider protocol.StakingProvider
}

func (v stakingVenue) Address() types.Address { return v.provider.Address() }

func (v stakingVenue) enter(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	return v.provider.Stake(ctx, from, amount)
}

func (v stakingVenue) exit(ctx context.Context, to types.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	return v.provider.Unstake(ctx, to, shares)
}

func (v stakingVenue) value(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	rate, err := v.provider.ExchangeRate(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return rate.MulInt(shares).TruncateInt(), nil
}

func (v stakingVenue) collect(ctx context.Context, owner types.Address) (sdkmath.Int, error) {
	return v.provider.ClaimRewards(ctx, owner)
}

func (v stakingVenue) refresh(ctx context.Context, rec *types.ProviderRecord) (bool, error) {
	rate, err := v.provider.ExchangeRate(ctx)
	if err != nil {
		return false, err
	}
	apy, err := v.provider.APYBps(ctx)
	if err != nil {
		return false, err
	}
	rec.APY = apy
	changed := rec.ExchangeRate.IsNil() || !rec.ExchangeRate.Equal(rate)
	rec.ExchangeRate = rate
	return changed, nil
}
