/*

This file contains an in-memory liquid staking provider. Shares appreciate through the exchange
rate and separate rewards accrue per holder until claimed.

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

type StakingProvider struct {
	Faults

	mu          sync.Mutex
	address     types.Address
	token       *Token
	rate        sdkmath.LegacyDec
	shares      map[types.Address]sdkmath.Int
	totalShares sdkmath.Int
	pending     map[types.Address]sdkmath.Int
	apyBps      uint64
}

func NewStakingProvider(address types.Address, token *Token, apyBps uint64) *StakingProvider {
	return &StakingProvider{
		address:     address,
		token:       token,
		rate:        sdkmath.LegacyOneDec(),
		shares:      make(map[types.Address]sdkmath.Int),
		totalShares: sdkmath.ZeroInt(),
		pending:     make(map[types.Address]sdkmath.Int),
		apyBps:      apyBps,
	}
}

func (s *StakingProvider) Address() types.Address { return s.address }

func (s *StakingProvider) sharesOf(owner types.Address) sdkmath.Int {
	if v, ok := s.shares[owner]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (s *StakingProvider) Stake(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := s.check(OpStake); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: stake amount %s", types.ErrInvalidAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.token.TransferFrom(ctx, s.address, from, s.address, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	minted := sdkmath.LegacyNewDecFromInt(amount).Quo(s.rate).TruncateInt()
	s.shares[from] = s.sharesOf(from).Add(minted)
	s.totalShares = s.totalShares.Add(minted)
	return minted, nil
}

func (s *StakingProvider) Unstake(ctx context.Context, to types.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if err := s.check(OpUnstake); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: unstake shares %s", types.ErrInvalidAmount, shares)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.sharesOf(to)
	if held.LT(shares) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w: holds %s shares, requested %s",
			types.ErrExternalCall, types.ErrInsufficientShares, held, shares)
	}
	amount := s.rate.MulInt(shares).TruncateInt()
	if err := s.token.Transfer(ctx, s.address, to, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	s.shares[to] = held.Sub(shares)
	s.totalShares = s.totalShares.Sub(shares)
	return amount, nil
}

func (s *StakingProvider) SharesOf(_ context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := s.check(OpBalance); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharesOf(owner), nil
}

func (s *StakingProvider) ExchangeRate(context.Context) (sdkmath.LegacyDec, error) {
	if err := s.check(OpRate); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, nil
}

func (s *StakingProvider) ClaimRewards(ctx context.Context, owner types.Address) (sdkmath.Int, error) {
	if err := s.check(OpClaim); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reward, ok := s.pending[owner]
	if !ok || reward.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.token.Transfer(ctx, s.address, owner, reward); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrExternalCall, err)
	}
	delete(s.pending, owner)
	return reward, nil
}

func (s *StakingProvider) APYBps(context.Context) (uint64, error) {
	if err := s.check(OpRate); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apyBps, nil
}

func (s *StakingProvider) SetAPYBps(apyBps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apyBps = apyBps
}

// AccrueRate grows the exchange rate by bps and mints the backing to the provider.
func (s *StakingProvider) AccrueRate(bps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.rate.MulInt(s.totalShares).TruncateInt()
	s.rate = s.rate.Add(s.rate.Mul(sdkmath.LegacyNewDec(int64(bps)).QuoInt64(utils.BpsDenominator)))
	if backing := s.rate.MulInt(s.totalShares).TruncateInt().Sub(before); backing.IsPositive() {
		s.token.Mint(s.address, backing)
	}
}

// Slash cuts the exchange rate by bps. The underlying stays with the provider.
func (s *StakingProvider) Slash(bps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = s.rate.Sub(s.rate.Mul(sdkmath.LegacyNewDec(int64(bps)).QuoInt64(utils.BpsDenominator)))
}

// AddRewards credits a claimable reward to owner.
func (s *StakingProvider) AddRewards(owner types.Address, amount sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := amount
	if prev, ok := s.pending[owner]; ok {
		total = prev.Add(amount)
	}
	s.pending[owner] = total
	s.token.Mint(s.address, amount)
}
