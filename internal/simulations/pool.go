/*

This file contains an in-memory weighted liquidity pool that accepts single-sided deposits of the
vault asset. Moving the paired token price revalues the pool the way a weighted AMM would.

*/

package simulations

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

type LiquidityPool struct {
	Faults

	mu         sync.Mutex
	address    types.Address
	token      *Token
	lp         map[types.Address]sdkmath.Int
	lpSupply   sdkmath.Int
	totalValue sdkmath.Int
	fees       map[types.Address]sdkmath.Int
	price      sdkmath.LegacyDec
	weights    []uint64
	feeAPYBps  uint64
}

// NewLiquidityPool creates a two-token pool; assetWeightBps is the weight of the vault asset.
func NewLiquidityPool(address types.Address, token *Token, assetWeightBps, feeAPYBps uint64) *LiquidityPool {
	return &LiquidityPool{
		address:    address,
		token:      token,
		lp:         make(map[types.Address]sdkmath.Int),
		lpSupply:   sdkmath.ZeroInt(),
		totalValue: sdkmath.ZeroInt(),
		fees:       make(map[types.Address]sdkmath.Int),
		price:      sdkmath.LegacyOneDec(),
		weights:    []uint64{assetWeightBps, utils.BpsDenominator - assetWeightBps},
		feeAPYBps:  feeAPYBps,
	}
}

func (p *LiquidityPool) Address() types.Address { return p.address }

func (p *LiquidityPool) lpOf(owner types.Address) sdkmath.Int {
	if v, ok := p.lp[owner]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (p *LiquidityPool) valueOf(lpTokens sdkmath.Int) sdkmath.Int {
	if p.lpSupply.IsZero() {
		return sdkmath.ZeroInt()
	}
	return lpTokens.Mul(p.totalValue).Quo(p.lpSupply)
}

func (p *LiquidityPool) AddLiquidity(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := p.check(OpAddLiquidity); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: liquidity amount %s", types.ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.token.TransferFrom(ctx, p.address, from, p.address, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	minted := amount
	if p.lpSupply.IsPositive() && p.totalValue.IsPositive() {
		minted = amount.Mul(p.lpSupply).Quo(p.totalValue)
	}
	p.lp[from] = p.lpOf(from).Add(minted)
	p.lpSupply = p.lpSupply.Add(minted)
	p.totalValue = p.totalValue.Add(amount)
	return minted, nil
}

func (p *LiquidityPool) RemoveLiquidity(ctx context.Context, to types.Address, lpTokens sdkmath.Int) (sdkmath.Int, error) {
	if err := p.check(OpRemoveLiquidity); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if lpTokens.IsNil() || !lpTokens.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: lp amount %s", types.ErrInvalidAmount, lpTokens)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.lpOf(to)
	if held.LT(lpTokens) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w: holds %s lp, requested %s",
			types.ErrExternalCall, types.ErrInsufficientShares, held, lpTokens)
	}
	amount := p.valueOf(lpTokens)
	if err := p.token.Transfer(ctx, p.address, to, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	p.lp[to] = held.Sub(lpTokens)
	p.lpSupply = p.lpSupply.Sub(lpTokens)
	p.totalValue = p.totalValue.Sub(amount)
	return amount, nil
}

func (p *LiquidityPool) LPBalanceOf(_ context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := p.check(OpBalance); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lpOf(owner), nil
}

func (p *LiquidityPool) LPValue(_ context.Context, lpTokens sdkmath.Int) (sdkmath.Int, error) {
	if err := p.check(OpBalance); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueOf(lpTokens), nil
}

func (p *LiquidityPool) CollectFees(ctx context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := p.check(OpCollectFees); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fees, ok := p.fees[owner]
	if !ok || fees.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if err := p.token.Transfer(ctx, p.address, owner, fees); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	delete(p.fees, owner)
	return fees, nil
}

func (p *LiquidityPool) PoolState(context.Context) (protocol.PoolState, error) {
	if err := p.check(OpPoolState); err != nil {
		return protocol.PoolState{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.PoolState{
		Price:      p.price,
		Weights:    append([]uint64(nil), p.weights...),
		FeeAPYBps:  p.feeAPYBps,
		TotalValue: p.totalValue,
		LPSupply:   p.lpSupply,
	}, nil
}

func (p *LiquidityPool) SetFeeAPYBps(feeAPYBps uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeAPYBps = feeAPYBps
}

// AccrueFees credits amount of swap fees to LP holders pro rata.
func (p *LiquidityPool) AccrueFees(amount sdkmath.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lpSupply.IsZero() || !amount.IsPositive() {
		return
	}
	distributed := sdkmath.ZeroInt()
	for owner, held := range p.lp {
		share := amount.Mul(held).Quo(p.lpSupply)
		if share.IsZero() {
			continue
		}
		if prev, ok := p.fees[owner]; ok {
			p.fees[owner] = prev.Add(share)
		} else {
			p.fees[owner] = share
		}
		distributed = distributed.Add(share)
	}
	p.token.Mint(p.address, distributed)
}

// SetPrice moves the paired token price. The pool value in asset units scales by
// (newPrice/oldPrice)^pairedWeight and the token balance follows.
func (p *LiquidityPool) SetPrice(price sdkmath.LegacyDec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !price.IsPositive() {
		return fmt.Errorf("%w: price %s", types.ErrInvalidParameter, price)
	}
	ratio, err := price.Quo(p.price).Float64()
	if err != nil {
		return err
	}
	factor := math.Pow(ratio, float64(p.weights[1])/utils.BpsDenominator)
	factorDec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(factor, 'f', 18, 64))
	if err != nil {
		return err
	}

	newValue := factorDec.MulInt(p.totalValue).TruncateInt()
	switch diff := newValue.Sub(p.totalValue); {
	case diff.IsPositive():
		p.token.Mint(p.address, diff)
	case diff.IsNegative():
		if err := p.token.Burn(p.address, diff.Neg()); err != nil {
			return err
		}
	}
	p.totalValue = newValue
	p.price = price
	return nil
}
