/*

This file contains the performance tracking of the engine: APY samples, the incremental
performance score and the risk metrics derived from the APY window.

*/

package manager

import (
	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/types"
)

const (
	consistentCV     = 0.10
	inconsistentCV   = 0.30
	performanceNudge = 2
)

// nudgePerformance moves the score by the consistency of the APY window. Identical samples have a
// coefficient of variation of zero, so a consistent strategy never falls below its baseline.
func nudgePerformance(score uint64, window []float64) uint64 {
	if len(window) < 2 {
		return score
	}
	cv := analyzer.CoefficientOfVariation(window)
	switch {
	case cv <= consistentCV:
		score += performanceNudge
		if score > types.MaxPerformanceScore {
			score = types.MaxPerformanceScore
		}
	case cv > inconsistentCV:
		if score < performanceNudge {
			score = 0
		} else {
			score -= performanceNudge
		}
	}
	return score
}

// UpdateAPY appends a sample to the strategy's history and nudges its performance score.
func (m *StrategyManager) UpdateAPY(caller types.Address, id types.StrategyID, apyBps uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwnerOrOperator(caller); err != nil {
		return err
	}
	rec, err := m.get(id)
	if err != nil {
		return err
	}

	rec.History.Push(apyBps)
	rec.LastAPY = apyBps
	rec.PerformanceScore = nudgePerformance(rec.PerformanceScore, rec.History.Floats())
	rec.UpdatedAt = m.now()

	m.log.Debug().
		Uint64("strategyID", uint64(id)).
		Uint64("apy", apyBps).
		Uint64("performanceScore", rec.PerformanceScore).
		Msg("APY updated")
	m.emitter.Emit(&events.APYUpdatedData{StrategyID: id, APY: apyBps, PerformanceScore: rec.PerformanceScore})
	return nil
}

// CalculateRiskAdjustedReturn is the last APY scaled by MAX_RISK_SCORE/risk.
func (m *StrategyManager) CalculateRiskAdjustedReturn(id types.StrategyID) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, err := m.get(id)
	if err != nil {
		return 0, err
	}
	return analyzer.RiskAdjustedReturn(rec.LastAPY, rec.RiskScore), nil
}

// CalculateSharpeRatio uses the APY window against the configured risk-free rate.
func (m *StrategyManager) CalculateSharpeRatio(id types.StrategyID) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, err := m.get(id)
	if err != nil {
		return 0, err
	}
	return analyzer.SharpeRatio(rec.History.Floats(), float64(m.config.RiskFreeBps)), nil
}
