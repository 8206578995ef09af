/*

This file contains the provider and pool records owned by a single strategy adapter.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type ProviderID uint64

type ProviderKind string

const (
	ProviderLending      ProviderKind = "LENDING"
	ProviderStaking      ProviderKind = "STAKING"
	ProviderLiquidStake  ProviderKind = "LIQUID_STAKING"
	ProviderWeightedPool ProviderKind = "WEIGHTED_POOL"
	ProviderStablePool   ProviderKind = "STABLE_POOL"
)

// DefaultMaxSingleProviderBps caps the share of an adapter's capital placed with one provider.
const DefaultMaxSingleProviderBps = 4000

// ProviderRecord is one sub-allocation target of an adapter: a staking provider or a liquidity pool.
type ProviderRecord struct {
	ID            ProviderID        `json:"id"`
	Target        Address           `json:"target"`
	Kind          ProviderKind      `json:"kind"`
	APY           uint64            `json:"apy_bps"`
	RiskScore     uint64            `json:"risk_score"`
	AllocationBps uint64            `json:"allocation_bps"`
	Principal     sdkmath.Int       `json:"principal"`               // Underlying placed with the provider, at cost
	Position      sdkmath.Int       `json:"position"`                // Staking shares or LP tokens held
	ExchangeRate  sdkmath.LegacyDec `json:"exchange_rate,omitempty"` // Staking: underlying per share
	PoolWeights   []uint64          `json:"pool_weights,omitempty"`  // Liquidity: token weights in bps
	EntryPrice    sdkmath.LegacyDec `json:"entry_price,omitempty"`   // Liquidity: price ratio when first entered
	IsActive      bool              `json:"is_active"`
}

func (p ProviderRecord) Clone() ProviderRecord {
	out := p
	out.PoolWeights = append([]uint64(nil), p.PoolWeights...)
	return out
}
