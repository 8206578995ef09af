/*

This file contains the liquidity adapter: capital is provided single-sided to several weighted or
stable pools. Yield arrives as collected swap fees, and pool value moves with the paired token
price, which exposes positions to impermanent loss.

*/

package adapter

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
)

type LiquidityAdapter struct {
	pooled
}

var _ Strategy = (*LiquidityAdapter)(nil)

func NewLiquidityAdapter(cfg Config, options PooledOptions) (*LiquidityAdapter, error) {
	p, err := newPooled(cfg, options, true)
	if err != nil {
		return nil, err
	}
	return &LiquidityAdapter{pooled: p}, nil
}

// AddPool registers a pool. Its current price becomes the entry price used for impermanent loss.
func (a *LiquidityAdapter) AddPool(ctx context.Context, caller types.Address, pool protocol.LiquidityPool, apyBps, riskScore uint64, kind types.ProviderKind) (types.ProviderID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pool == nil {
		return 0, errors.Join(types.ErrInvalidParameter, errors.New("pool is required"))
	}
	switch kind {
	case types.ProviderWeightedPool, types.ProviderStablePool:
	case "":
		kind = types.ProviderWeightedPool
	default:
		return 0, errors.Join(types.ErrInvalidParameter, fmt.Errorf("unsupported pool kind %q", kind))
	}
	state, err := pool.PoolState(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: pool state: %w", types.ErrExternalCall, err)
	}
	if len(state.Weights) != 2 {
		return 0, errors.Join(types.ErrInvalidParameter, fmt.Errorf("pool has %d tokens, want 2", len(state.Weights)))
	}
	return a.addVenueLocked(caller, types.ProviderRecord{
		Kind:        kind,
		APY:         apyBps,
		RiskScore:   riskScore,
		PoolWeights: state.Weights,
		EntryPrice:  state.Price,
	}, poolVenue{pool: pool})
}

func (a *LiquidityAdapter) poolOf(id types.ProviderID) (types.ProviderRecord, protocol.LiquidityPool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, err := a.get(id)
	if err != nil {
		return types.ProviderRecord{}, nil, err
	}
	return rec.Clone(), a.venues[id].(poolVenue).pool, nil
}

// CalculateImpermanentLoss reports, in bps, how much a position in the pool trails simply holding
// the tokens since the entry price.
func (a *LiquidityAdapter) CalculateImpermanentLoss(ctx context.Context, id types.ProviderID) (uint64, error) {
	rec, pool, err := a.poolOf(id)
	if err != nil {
		return 0, err
	}
	state, err := pool.PoolState(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: pool state: %w", types.ErrExternalCall, err)
	}
	return analyzer.CalculateImpermanentLoss(rec.EntryPrice, state.Price, pairedWeight(rec, state))
}

// GetPriceDeviation reports, in bps, how far the pool price moved away from the entry price.
func (a *LiquidityAdapter) GetPriceDeviation(ctx context.Context, id types.ProviderID) (uint64, error) {
	rec, pool, err := a.poolOf(id)
	if err != nil {
		return 0, err
	}
	state, err := pool.PoolState(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: pool state: %w", types.ErrExternalCall, err)
	}
	return analyzer.PriceDeviationBps(rec.EntryPrice, state.Price)
}

func pairedWeight(rec types.ProviderRecord, state protocol.PoolState) uint64 {
	if len(state.Weights) == 2 {
		return state.Weights[1]
	}
	if len(rec.PoolWeights) == 2 {
		return rec.PoolWeights[1]
	}
	return 5000
}

type poolVenue struct {
	pool protocol.LiquidityPool
}

func (v poolVenue) Address() types.Address { return v.pool.Address() }

func (v poolVenue) enter(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	return v.pool.AddLiquidity(ctx, from, amount)
}

func (v poolVenue) exit(ctx context.Context, to types.Address, lpTokens sdkmath.Int) (sdkmath.Int, error) {
	if !lpTokens.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	return v.pool.RemoveLiquidity(ctx, to, lpTokens)
}

func (v poolVenue) value(ctx context.Context, lpTokens sdkmath.Int) (sdkmath.Int, error) {
	return v.pool.LPValue(ctx, lpTokens)
}

func (v poolVenue) collect(ctx context.Context, owner types.Address) (sdkmath.Int, error) {
	return v.pool.CollectFees(ctx, owner)
}

func (v poolVenue) refresh(ctx context.Context, rec *types.ProviderRecord) (bool, error) {
	state, err := v.pool.PoolState(ctx)
	if err != nil {
		return false, err
	}
	rec.APY = state.FeeAPYBps
	rec.PoolWeights = state.Weights
	return false, nil
}
