/*

This file contains the move planner: it turns signed rebalance deltas into a two-phase plan where
every withdrawal runs before any deposit and deposits never exceed what the withdrawals freed.

*/

package planner

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

var planLogger = logger.GetForComponent("move_planner")

// Limits bounds how much capital one plan may move.
type Limits struct {
	// MaxWithdrawBps caps total withdrawals per plan as a share of the invested total; 0 disables it.
	MaxWithdrawBps uint64
}

// Plan is executed in order: all withdrawals, then all deposits.
type Plan struct {
	Withdrawals []types.StrategyMove `json:"withdrawals"`
	Deposits    []types.StrategyMove `json:"deposits"`
}

func (p Plan) Empty() bool {
	return len(p.Withdrawals) == 0 && len(p.Deposits) == 0
}

func (p Plan) TotalWithdrawn() sdkmath.Int {
	return sumMoves(p.Withdrawals)
}

func sumMoves(moves []types.StrategyMove) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, m := range moves {
		total = total.Add(m.Amount)
	}
	return total
}

// GeneratePlan splits deltas into withdrawals and deposits. Withdrawals above the limit are scaled
// down proportionally, then deposits are fitted into what the withdrawals free.
func GeneratePlan(deltas []manager.Allocation, total sdkmath.Int, limits Limits) (Plan, error) {
	if total.IsNil() || total.IsNegative() {
		return Plan{}, fmt.Errorf("%w: total %s", types.ErrInvalidAmount, total)
	}

	var plan Plan
	for _, d := range deltas {
		if d.Amount.IsNil() || d.Amount.IsZero() {
			continue
		}
		if d.Amount.IsNegative() {
			plan.Withdrawals = append(plan.Withdrawals, types.StrategyMove{StrategyID: d.StrategyID, Direction: types.MoveWithdraw, Amount: d.Amount.Neg()})
		} else {
			plan.Deposits = append(plan.Deposits, types.StrategyMove{StrategyID: d.StrategyID, Direction: types.MoveDeposit, Amount: d.Amount})
		}
	}

	if limits.MaxWithdrawBps > 0 {
		maxWithdraw := utils.MulBps(total, limits.MaxWithdrawBps)
		if requested := sumMoves(plan.Withdrawals); requested.GT(maxWithdraw) {
			planLogger.Warn().
				Str("requested", requested.String()).
				Str("max", maxWithdraw.String()).
				Msg("Withdrawals exceed per-plan limit, scaling down")
			plan.Withdrawals = scaleMoves(plan.Withdrawals, maxWithdraw)
		}
	}

	plan.Deposits = FitDeposits(plan.Deposits, plan.TotalWithdrawn())
	planLogger.Debug().
		Int("withdrawals", len(plan.Withdrawals)).
		Int("deposits", len(plan.Deposits)).
		Msg("Move plan generated")
	return plan, nil
}

// FitDeposits scales deposits down proportionally so they sum to at most budget. Moves scaled to
// zero are dropped.
func FitDeposits(deposits []types.StrategyMove, budget sdkmath.Int) []types.StrategyMove {
	if budget.IsNil() || !budget.IsPositive() {
		return nil
	}
	if sumMoves(deposits).LTE(budget) {
		return deposits
	}
	return scaleMoves(deposits, budget)
}

func scaleMoves(moves []types.StrategyMove, total sdkmath.Int) []types.StrategyMove {
	weights := make([]sdkmath.Int, len(moves))
	for i, m := range moves {
		weights[i] = m.Amount
	}
	amounts := analyzer.ProportionalSplit(total, weights)
	out := make([]types.StrategyMove, 0, len(moves))
	for i, m := range moves {
		if amounts[i].IsZero() {
			continue
		}
		m.Amount = amounts[i]
		out = append(out, m)
	}
	return out
}
