/*

This file contains the lending adapter: all capital is supplied to a single lending market and
interest accrues inside the market position.

*/

package adapter

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
)

type LendingAdapter struct {
	base
	market    protocol.LendingMarket
	principal sdkmath.Int
}

var _ Strategy = (*LendingAdapter)(nil)

func NewLendingAdapter(cfg Config, market protocol.LendingMarket) (*LendingAdapter, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, errors.Join(types.ErrInvalidParameter, errors.New("lending market is required"))
	}
	return &LendingAdapter{base: b, market: market, principal: sdkmath.ZeroInt()}, nil
}

// Principal is the capital supplied to the market, excluding realized interest.
func (a *LendingAdapter) Principal() sdkmath.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.principal
}

func (a *LendingAdapter) Deposit(ctx context.Context, caller types.Address, amount sdkmath.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := a.pull(ctx, amount); err != nil {
		return err
	}

	var s staged
	err := s.Do(func() error {
		if err := a.token.Approve(ctx, a.address, a.market.Address(), amount); err != nil {
			return err
		}
		_, err := a.market.Supply(ctx, a.address, amount)
		return err
	}, func() {
		a.principal = a.principal.Add(amount)
	}, nil)
	if err != nil {
		if refundErr := a.refund(ctx, amount); refundErr != nil {
			a.log.Error().Err(refundErr).Msg("Failed to refund vault after supply failure")
		}
		return fmt.Errorf("%w: supply: %w", types.ErrExternalCall, err)
	}
	s.Commit()

	a.log.Debug().Str("amount", amount.String()).Msg("Supplied to lending market")
	return nil
}

// Withdraw pays from idle funds first, then redeems from the market. A market short on liquidity
// yields a partial withdrawal.
func (a *LendingAdapter) Withdraw(ctx context.Context, caller types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requirePositive(amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.withdrawLocked(ctx, amount)
}

func (a *LendingAdapter) withdrawLocked(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	position, err := a.market.BalanceOf(ctx, a.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: market balance: %w", types.ErrExternalCall, err)
	}

	fromMarket := sdkmath.MinInt(amount.Sub(sdkmath.MinInt(idle, amount)), position)
	if fromMarket.IsPositive() {
		redeemed, err := a.market.Redeem(ctx, a.address, fromMarket)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: redeem: %w", types.ErrExternalCall, err)
		}
		a.principal = reducePrincipal(a.principal, position, redeemed)
	}

	out := sdkmath.MinInt(amount, idle.Add(fromMarket))
	if err := a.push(ctx, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(amount) {
		a.log.Warn().Str("requested", amount.String()).Str("withdrawn", out.String()).Msg("Partial withdrawal")
	}
	return out, nil
}

// reducePrincipal burns principal in proportion to the share of the position removed.
func reducePrincipal(principal, position, removed sdkmath.Int) sdkmath.Int {
	if !position.IsPositive() || removed.GTE(position) {
		return sdkmath.ZeroInt()
	}
	return principal.Sub(principal.Mul(removed).Quo(position))
}

func (a *LendingAdapter) WithdrawAll(ctx context.Context, caller types.Address) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	position, err := a.market.BalanceOf(ctx, a.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: market balance: %w", types.ErrExternalCall, err)
	}
	if position.IsPositive() {
		if _, err := a.market.Redeem(ctx, a.address, position); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: redeem: %w", types.ErrExternalCall, err)
		}
	}
	a.principal = sdkmath.ZeroInt()

	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := a.push(ctx, idle); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return idle, nil
}

// Harvest realizes the interest accrued above principal. Interest already compounds inside the
// market, so it stays supplied.
func (a *LendingAdapter) Harvest(ctx context.Context, caller types.Address) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	position, err := a.market.BalanceOf(ctx, a.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: market balance: %w", types.ErrExternalCall, err)
	}
	yield := position.Sub(a.principal)
	if !yield.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	a.principal = position
	a.emitter.Emit(&events.HarvestedData{Source: a.name, Yield: yield})
	return yield, nil
}

func (a *LendingAdapter) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	position, err := a.market.BalanceOf(ctx, a.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: market balance: %w", types.ErrExternalCall, err)
	}
	return idle.Add(position), nil
}

func (a *LendingAdapter) CurrentAPY(ctx context.Context) (uint64, error) {
	rate, err := a.market.SupplyRateBps(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: supply rate: %w", types.ErrExternalCall, err)
	}
	return rate, nil
}
