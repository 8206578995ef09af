/*

This file contains an in-memory fungible token ledger with allowances.

*/

package simulations

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

type Token struct {
	Faults

	mu         sync.Mutex
	symbol     string
	decimals   uint8
	balances   map[types.Address]sdkmath.Int
	allowances map[types.Address]map[types.Address]sdkmath.Int
	supply     sdkmath.Int
}

func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[types.Address]sdkmath.Int),
		allowances: make(map[types.Address]map[types.Address]sdkmath.Int),
		supply:     sdkmath.ZeroInt(),
	}
}

func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) balance(owner types.Address) sdkmath.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (t *Token) BalanceOf(_ context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := t.check(OpBalance); err != nil {
		return sdkmath.ZeroInt(), err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance(owner), nil
}

// Mint creates amount out of thin air for to.
func (t *Token) Mint(to types.Address, amount sdkmath.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = t.balance(to).Add(amount)
	t.supply = t.supply.Add(amount)
}

// Burn destroys amount held by from.
func (t *Token) Burn(from types.Address, amount sdkmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balance(from).LT(amount) {
		return fmt.Errorf("%w: burn %s from %s", types.ErrInsufficientBalance, amount, from)
	}
	t.balances[from] = t.balance(from).Sub(amount)
	t.supply = t.supply.Sub(amount)
	return nil
}

func (t *Token) TotalSupply() sdkmath.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply
}

func (t *Token) move(from, to types.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: transfer amount %s", types.ErrInvalidAmount, amount)
	}
	if t.balance(from).LT(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", types.ErrInsufficientBalance, from, t.balance(from), amount)
	}
	t.balances[from] = t.balance(from).Sub(amount)
	t.balances[to] = t.balance(to).Add(amount)
	return nil
}

func (t *Token) Transfer(_ context.Context, from, to types.Address, amount sdkmath.Int) error {
	if err := t.check(OpTransfer); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to types.Address, amount sdkmath.Int) error {
	if err := t.check(OpTransfer); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if spender != from {
		allowed := t.allowance(from, spender)
		if allowed.LT(amount) {
			return fmt.Errorf("%w: allowance %s of %s for %s below %s", types.ErrUnauthorized, allowed, from, spender, amount)
		}
		if err := t.move(from, to, amount); err != nil {
			return err
		}
		t.allowances[from][spender] = allowed.Sub(amount)
		return nil
	}
	return t.move(from, to, amount)
}

func (t *Token) allowance(owner, spender types.Address) sdkmath.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return sdkmath.ZeroInt()
}

func (t *Token) Approve(_ context.Context, owner, spender types.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: approve amount %s", types.ErrInvalidAmount, amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[types.Address]sdkmath.Int)
	}
	t.allowances[owner][spender] = amount
	return nil
}

func (t *Token) Allowance(_ context.Context, owner, spender types.Address) (sdkmath.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowance(owner, spender), nil
}
