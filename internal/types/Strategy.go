/*

This file contains the strategy record kept by the allocation engine, and the APY history ring it
uses for performance tracking.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Address identifies an account: a user, the owner, the vault or an adapter.
type Address string

type StrategyID uint64

const (
	MaxRiskScore            = 100
	InitialPerformanceScore = 50
	MaxPerformanceScore     = 100
	DefaultHistoryCapacity  = 30
)

// APYHistory is a fixed capacity ring of APY samples in bps. Once full, every push
// evicts the oldest sample.
type APYHistory struct {
	samples []uint64
	next    int
	full    bool
}

func NewAPYHistory(capacity int) *APYHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &APYHistory{samples: make([]uint64, capacity)}
}

func (h *APYHistory) Push(apy uint64) {
	h.samples[h.next] = apy
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

func (h *APYHistory) Len() int {
	if h.full {
		return len(h.samples)
	}
	return h.next
}

func (h *APYHistory) Cap() int { return len(h.samples) }

// Values returns the samples oldest first.
func (h *APYHistory) Values() []uint64 {
	out := make([]uint64, 0, h.Len())
	if h.full {
		out = append(out, h.samples[h.next:]...)
	}
	return append(out, h.samples[:h.next]...)
}

// Floats returns the samples oldest first as float64 for the statistics helpers.
func (h *APYHistory) Floats() []float64 {
	values := h.Values()
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// StrategyParams is the input to registering or updating a strategy.
type StrategyParams struct {
	Name             string  `json:"name" yaml:"name"`
	Address          Address `json:"address" yaml:"address"`
	Weight           uint64  `json:"weight_bps" yaml:"weight_bps"`
	RiskScore        uint64  `json:"risk_score" yaml:"risk_score"`
	MinAllocationBps uint64  `json:"min_allocation_bps" yaml:"min_allocation_bps"`
	MaxAllocationBps uint64  `json:"max_allocation_bps" yaml:"max_allocation_bps"`
}

// StrategyRecord is the engine's view of one registered strategy adapter.
type StrategyRecord struct {
	ID               StrategyID  `json:"id"`
	Name             string      `json:"name"`
	Address          Address     `json:"address"`
	Weight           uint64      `json:"weight_bps"`
	RiskScore        uint64      `json:"risk_score"`
	MinAllocationBps uint64      `json:"min_allocation_bps"`
	MaxAllocationBps uint64      `json:"max_allocation_bps"`
	IsActive         bool        `json:"is_active"`
	LastAPY          uint64      `json:"last_apy_bps"`
	History          *APYHistory `json:"-"`
	PerformanceScore uint64      `json:"performance_score"`
	AddedAt          time.Time   `json:"added_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so callers can read a record outside the engine lock.
func (r StrategyRecord) Clone() StrategyRecord {
	out := r
	if r.History != nil {
		h := *r.History
		h.samples = append([]uint64(nil), r.History.samples...)
		out.History = &h
	}
	return out
}

// StrategyInfo is the read-only aggregate exposed for observability.
type StrategyInfo struct {
	ID               StrategyID  `json:"id"`
	Name             string      `json:"name"`
	Address          Address     `json:"address"`
	TotalAssets      sdkmath.Int `json:"total_assets"`
	APY              uint64      `json:"apy_bps"`
	Weight           uint64      `json:"weight_bps"`
	RiskScore        uint64      `json:"risk_score"`
	MinAllocationBps uint64      `json:"min_allocation_bps"`
	MaxAllocationBps uint64      `json:"max_allocation_bps"`
	IsActive         bool        `json:"is_active"`
	PerformanceScore uint64      `json:"performance_score"`
	SharpeRatio      float64     `json:"sharpe_ratio"`
	APYHistory       []uint64    `json:"apy_history"`
	Error            string      `json:"error,omitempty"`
}
