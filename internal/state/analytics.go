package state

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// CycleMetrics aggregates every persisted cycle.
type CycleMetrics struct {
	TotalCycles      int         `json:"total_cycles"`
	SuccessfulCycles int         `json:"successful_cycles"`
	RebalanceCycles  int         `json:"rebalance_cycles"`
	TotalYield       sdkmath.Int `json:"total_yield"`
	TotalDeployed    sdkmath.Int `json:"total_deployed"`
	LastCycle        uint64      `json:"last_cycle"`
}

// GetCycleMetrics aggregates yield, deployment and outcome counts over all snapshots.
func (s *Store) GetCycleMetrics(ctx context.Context) (CycleMetrics, error) {
	metrics := CycleMetrics{TotalYield: sdkmath.ZeroInt(), TotalDeployed: sdkmath.ZeroInt()}
	if s == nil || s.db == nil {
		return metrics, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_number, harvest_yield, deployed, rebalanced, error_message
		FROM cycle_snapshots`)
	if err != nil {
		return metrics, fmt.Errorf("failed to query cycle metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cycle           uint64
			yield, deployed string
			rebalanced      bool
			errorMessage    string
		)
		if err := rows.Scan(&cycle, &yield, &deployed, &rebalanced, &errorMessage); err != nil {
			return metrics, fmt.Errorf("failed to scan cycle metrics: %w", err)
		}
		y, err := parseInt("harvest_yield", yield)
		if err != nil {
			return metrics, err
		}
		d, err := parseInt("deployed", deployed)
		if err != nil {
			return metrics, err
		}

		metrics.TotalCycles++
		if errorMessage == "" {
			metrics.SuccessfulCycles++
		}
		if rebalanced {
			metrics.RebalanceCycles++
		}
		metrics.TotalYield = metrics.TotalYield.Add(y)
		metrics.TotalDeployed = metrics.TotalDeployed.Add(d)
		if cycle > metrics.LastCycle {
			metrics.LastCycle = cycle
		}
	}
	if err := rows.Err(); err != nil {
		return metrics, fmt.Errorf("failed to iterate cycle metrics: %w", err)
	}
	return metrics, nil
}
