/*

This file contains the allocation math of the engine: the optimal split of capital over active
strategies, the rebalance trigger and the signed rebalance amounts.

*/

package manager

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

// Allocation is the amount assigned to one strategy. For rebalance amounts it is signed:
// positive means deposit into the strategy, negative means withdraw.
type Allocation struct {
	StrategyID types.StrategyID `json:"strategy_id"`
	Amount     sdkmath.Int      `json:"amount"`
}

// rawWeights scores every active strategy. Strategies above the risk tolerance get zero weight;
// all-zero scores fall back to the configured weights; no eligible strategy at all falls back to
// the weights of every active strategy.
func rawWeights(active []*types.StrategyRecord, cfg Config) []sdkmath.Int {
	weights := make([]sdkmath.Int, len(active))
	eligible := 0
	anyScore := false
	for i, rec := range active {
		weights[i] = sdkmath.ZeroInt()
		if rec.RiskScore > cfg.RiskTolerance {
			continue
		}
		eligible++
		weights[i] = analyzer.StrategyScore(rec.LastAPY, rec.PerformanceScore, rec.RiskScore)
		if weights[i].IsPositive() {
			anyScore = true
		}
	}

	switch {
	case eligible == 0:
		for i, rec := range active {
			weights[i] = sdkmath.NewIntFromUint64(rec.Weight)
		}
	case !anyScore:
		for i, rec := range active {
			if rec.RiskScore <= cfg.RiskTolerance {
				weights[i] = sdkmath.NewIntFromUint64(rec.Weight)
			}
		}
	}
	return weights
}

func (m *StrategyManager) activeRecords() []*types.StrategyRecord {
	active := make([]*types.StrategyRecord, 0, len(m.order))
	for _, id := range m.order {
		if rec := m.strategies[id]; rec.IsActive {
			active = append(active, rec)
		}
	}
	return active
}

func (m *StrategyManager) optimalLocked(total sdkmath.Int) ([]Allocation, error) {
	if total.IsNil() || total.IsNegative() {
		return nil, fmt.Errorf("%w: total %s", types.ErrInvalidAmount, total)
	}
	active := m.activeRecords()
	if len(active) == 0 {
		return []Allocation{}, nil
	}

	weights := rawWeights(active, m.config)
	bounds := make([]analyzer.Bound, len(active))
	for i, rec := range active {
		bounds[i] = analyzer.Bound{
			Min: utils.MulBps(total, rec.MinAllocationBps),
			Max: utils.MulBps(total, rec.MaxAllocationBps),
		}
	}

	amounts, err := analyzer.DetermineTargetAllocations(total, weights, bounds)
	if err != nil {
		return nil, err
	}
	out := make([]Allocation, len(active))
	for i, rec := range active {
		out[i] = Allocation{StrategyID: rec.ID, Amount: amounts[i]}
	}
	return out, nil
}

// CalculateOptimalAllocation splits total over the active strategies, in registration order.
// The amounts always sum exactly to total; with no active strategy the result is empty.
func (m *StrategyManager) CalculateOptimalAllocation(total sdkmath.Int) ([]Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.optimalLocked(total)
}

// deltasLocked pairs each strategy's current and optimal amounts. Strategies holding capital
// that are not active have an optimal amount of zero.
func (m *StrategyManager) deltasLocked(current map[types.StrategyID]sdkmath.Int, total sdkmath.Int) ([]Allocation, error) {
	optimal, err := m.optimalLocked(total)
	if err != nil {
		return nil, err
	}

	currentOf := func(id types.StrategyID) sdkmath.Int {
		if amt, ok := current[id]; ok && !amt.IsNil() {
			return amt
		}
		return sdkmath.ZeroInt()
	}

	seen := make(map[types.StrategyID]bool, len(optimal))
	deltas := make([]Allocation, 0, len(optimal)+len(current))
	for _, a := range optimal {
		seen[a.StrategyID] = true
		deltas = append(deltas, Allocation{StrategyID: a.StrategyID, Amount: a.Amount.Sub(currentOf(a.StrategyID))})
	}

	var stale []types.StrategyID
	for id, amt := range current {
		if !seen[id] && !amt.IsNil() && !amt.IsZero() {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	for _, id := range stale {
		deltas = append(deltas, Allocation{StrategyID: id, Amount: currentOf(id).Neg()})
	}
	return deltas, nil
}

// ShouldRebalance reports whether any strategy's current allocation deviates from the optimal
// split of the current total by strictly more than the rebalance threshold.
func (m *StrategyManager) ShouldRebalance(current map[types.StrategyID]sdkmath.Int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := sdkmath.ZeroInt()
	for _, amt := range current {
		if !amt.IsNil() {
			total = total.Add(amt)
		}
	}
	if !total.IsPositive() {
		return false, nil
	}

	deltas, err := m.deltasLocked(current, total)
	if err != nil {
		return false, err
	}
	for _, d := range deltas {
		if utils.BpsOf(d.Amount, total) > m.config.RebalanceThresholdBps {
			m.log.Debug().
				Uint64("strategyID", uint64(d.StrategyID)).
				Str("delta", d.Amount.String()).
				Uint64("thresholdBps", m.config.RebalanceThresholdBps).
				Msg("Allocation drift exceeds threshold")
			return true, nil
		}
	}
	return false, nil
}

// CalculateRebalanceAmounts returns optimal minus current for every active strategy, plus a full
// withdrawal for inactive strategies still holding capital. The deltas sum to total minus the
// current holdings.
func (m *StrategyManager) CalculateRebalanceAmounts(current map[types.StrategyID]sdkmath.Int, total sdkmath.Int) ([]Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deltasLocked(current, total)
}
