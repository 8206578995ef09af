/*

This file contains an in-memory lending market. Positions are units against a supply index that
grows as interest accrues.

*/

package simulations

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

type LendingMarket struct {
	Faults

	mu         sync.Mutex
	address    types.Address
	token      *Token
	index      sdkmath.LegacyDec
	units      map[types.Address]sdkmath.Int
	totalUnits sdkmath.Int
	rateBps    uint64
}

func NewLendingMarket(address types.Address, token *Token, rateBps uint64) *LendingMarket {
	return &LendingMarket{
		address:    address,
		token:      token,
		index:      sdkmath.LegacyOneDec(),
		units:      make(map[types.Address]sdkmath.Int),
		totalUnits: sdkmath.ZeroInt(),
		rateBps:    rateBps,
	}
}

func (m *LendingMarket) Address() types.Address { return m.address }

func (m *LendingMarket) unitsOf(owner types.Address) sdkmath.Int {
	if u, ok := m.units[owner]; ok {
		return u
	}
	return sdkmath.ZeroInt()
}

func (m *LendingMarket) valueOf(units sdkmath.Int) sdkmath.Int {
	return m.index.MulInt(units).TruncateInt()
}

func (m *LendingMarket) Supply(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := m.check(OpSupply); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: supply amount %s", types.ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.token.TransferFrom(ctx, m.address, from, m.address, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	minted := sdkmath.LegacyNewDecFromInt(amount).Quo(m.index).TruncateInt()
	m.units[from] = m.unitsOf(from).Add(minted)
	m.totalUnits = m.totalUnits.Add(minted)
	return minted, nil
}

func (m *LendingMarket) Redeem(ctx context.Context, to types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := m.check(OpRedeem); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: redeem amount %s", types.ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.unitsOf(to)
	if m.valueOf(held).LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w: position worth %s, requested %s",
			types.ErrExternalCall, types.ErrInsufficientBalance, m.valueOf(held), amount)
	}
	burned := sdkmath.LegacyNewDecFromInt(amount).Quo(m.index).Ceil().TruncateInt()
	burned = sdkmath.MinInt(burned, held)

	if err := m.token.Transfer(ctx, m.address, to, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	m.units[to] = held.Sub(burned)
	m.totalUnits = m.totalUnits.Sub(burned)
	return amount, nil
}

func (m *LendingMarket) BalanceOf(_ context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := m.check(OpBalance); err != nil {
		return sdkmath.ZeroInt(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valueOf(m.unitsOf(owner)), nil
}

func (m *LendingMarket) SupplyRateBps(context.Context) (uint64, error) {
	if err := m.check(OpRate); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateBps, nil
}

func (m *LendingMarket) SetRateBps(rateBps uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateBps = rateBps
}

// Accrue grows the supply index by bps and mints the interest backing it to the market.
func (m *LendingMarket) Accrue(bps uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.valueOf(m.totalUnits)
	growth := sdkmath.LegacyNewDec(int64(bps)).QuoInt64(utils.BpsDenominator)
	m.index = m.index.Add(m.index.Mul(growth))
	if interest := m.valueOf(m.totalUnits).Sub(before); interest.IsPositive() {
		m.token.Mint(m.address, interest)
	}
}
