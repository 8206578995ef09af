/*

This file contains the capability interfaces of the external collaborators: the asset token and the
three kinds of underlying yield protocol an adapter can wrap.

Every call is made on behalf of an explicit account. Implementations return an error wrapping
types.ErrExternalCall, or a more specific sentinel, when the call fails.

*/

package protocol

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

// Token is the vault's asset.
type Token interface {
	Symbol() string
	Decimals() uint8
	BalanceOf(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	Transfer(ctx context.Context, from, to types.Address, amount sdkmath.Int) error
	// TransferFrom moves amount from one account to another using spender's allowance.
	TransferFrom(ctx context.Context, spender, from, to types.Address, amount sdkmath.Int) error
	Approve(ctx context.Context, owner, spender types.Address, amount sdkmath.Int) error
	Allowance(ctx context.Context, owner, spender types.Address) (sdkmath.Int, error)
}

// LendingMarket mints an interest-bearing position against supplied principal.
type LendingMarket interface {
	Address() types.Address
	// Supply pulls amount from `from` and returns the position units minted.
	Supply(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	// Redeem burns enough position to return amount of underlying to `to`.
	Redeem(ctx context.Context, to types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	// BalanceOf is the underlying value of owner's position.
	BalanceOf(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	SupplyRateBps(ctx context.Context) (uint64, error)
}

// StakingProvider issues liquid staking shares whose exchange rate grows with staking rewards.
type StakingProvider interface {
	Address() types.Address
	Stake(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	// Unstake burns shares held by `to` and returns the underlying paid out.
	Unstake(ctx context.Context, to types.Address, shares sdkmath.Int) (sdkmath.Int, error)
	SharesOf(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	// ExchangeRate is the underlying per share.
	ExchangeRate(ctx context.Context) (sdkmath.LegacyDec, error)
	// ClaimRewards pays owner's pending rewards to owner and returns the amount.
	ClaimRewards(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	APYBps(ctx context.Context) (uint64, error)
}

// PoolState is the observable state of a liquidity pool.
type PoolState struct {
	Price      sdkmath.LegacyDec // Paired token price in units of the asset
	Weights    []uint64          // Token weights in bps, asset first
	FeeAPYBps  uint64
	TotalValue sdkmath.Int
	LPSupply   sdkmath.Int
}

// LiquidityPool accepts single-sided liquidity in the vault asset.
type LiquidityPool interface {
	Address() types.Address
	AddLiquidity(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	// RemoveLiquidity burns lpTokens held by `to` and returns the asset paid out.
	RemoveLiquidity(ctx context.Context, to types.Address, lpTokens sdkmath.Int) (sdkmath.Int, error)
	LPBalanceOf(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	LPValue(ctx context.Context, lpTokens sdkmath.Int) (sdkmath.Int, error)
	CollectFees(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	PoolState(ctx context.Context) (PoolState, error)
}
