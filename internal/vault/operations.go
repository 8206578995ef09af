/*

This file contains the batched maintenance operations of the vault. Each adapter call is isolated:
a failing adapter is logged, reported in the batch result and skipped while the others proceed.

*/

package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/adapter"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/planner"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

const vaultSource = "vault"

// depositInto approves the adapter for amount and lets it pull. The approval is cleared when the
// adapter fails.
func (v *Vault) depositInto(ctx context.Context, id types.StrategyID, a adapter.Strategy, amount sdkmath.Int) error {
	if err := v.token.Approve(ctx, v.address, a.Address(), amount); err != nil {
		return fmt.Errorf("%w: approve adapter: %w", types.ErrExternalCall, err)
	}
	if err := a.Deposit(ctx, v.address, amount); err != nil {
		if resetErr := v.token.Approve(ctx, v.address, a.Address(), sdkmath.ZeroInt()); resetErr != nil {
			v.log.Warn().Err(resetErr).Str("adapter", a.Name()).Msg("Failed to clear adapter approval")
		}
		return err
	}
	v.track(id, amount)
	return nil
}

// AllocateToStrategies deploys the reserve above the target reserve ratio, split the way the
// allocation engine decides.
func (v *Vault) AllocateToStrategies(ctx context.Context, caller types.Address) (types.AllocationReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	report := types.AllocationReport{Deployed: sdkmath.ZeroInt()}
	if err := v.onlyOwner(caller); err != nil {
		return report, err
	}

	reserve, err := v.reserveLocked(ctx)
	if err != nil {
		return report, err
	}
	total, err := v.totalAssetsLocked(ctx)
	if err != nil {
		return report, err
	}
	idle := reserve.Sub(utils.MulBps(total, v.reserveRatioBps))
	if !idle.IsPositive() {
		v.log.Debug().Str("reserve", reserve.String()).Msg("Nothing to allocate above reserve target")
		return report, nil
	}

	allocations, err := v.manager.CalculateOptimalAllocation(idle)
	if err != nil {
		return report, err
	}
	for _, alloc := range allocations {
		if !alloc.Amount.IsPositive() {
			continue
		}
		a, ok := v.adapters[alloc.StrategyID]
		if !ok {
			continue
		}
		if err := v.depositInto(ctx, alloc.StrategyID, a, alloc.Amount); err != nil {
			v.log.Error().Err(err).Uint64("strategyID", uint64(alloc.StrategyID)).Msg("Allocation to strategy failed, skipping")
			report.Failures = append(report.Failures, v.reportFailure(alloc.StrategyID, "deposit", err))
			continue
		}
		report.Deployed = report.Deployed.Add(alloc.Amount)
		report.Moves = append(report.Moves, types.StrategyMove{
			StrategyID: alloc.StrategyID,
			Direction:  types.MoveDeposit,
			Amount:     alloc.Amount,
		})
	}

	v.log.Info().
		Str("deployed", report.Deployed.String()).
		Int("moves", len(report.Moves)).
		Int("failures", len(report.Failures)).
		Msg("Allocated reserve to strategies")
	return report, nil
}

// Rebalance moves capital between strategies when the engine reports drift above threshold. It is a
// no-op, not an error, when no rebalancing is warranted.
func (v *Vault) Rebalance(ctx context.Context, caller types.Address) (types.RebalanceReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var report types.RebalanceReport
	if err := v.onlyOwner(caller); err != nil {
		return report, err
	}

	holdings, failures := v.holdingsLocked(ctx)
	if len(failures) > 0 {
		// Never move capital on cached readings.
		for _, f := range failures {
			v.emitter.Emit(&events.StrategyCallFailedData{Failure: f})
		}
		report.Failures = failures
		v.log.Warn().Int("failures", len(failures)).Msg("Skipping rebalance, strategy readings unavailable")
		return report, nil
	}

	should, err := v.manager.ShouldRebalance(holdings)
	if err != nil {
		return report, err
	}
	if !should {
		v.log.Debug().Msg("Allocations within threshold, no rebalance needed")
		return report, nil
	}

	total := utils.SumInts(mapValues(holdings))
	deltas, err := v.manager.CalculateRebalanceAmounts(holdings, total)
	if err != nil {
		return report, err
	}
	plan, err := planner.GeneratePlan(deltas, total, v.limits)
	if err != nil {
		return report, err
	}

	freed := sdkmath.ZeroInt()
	for _, move := range plan.Withdrawals {
		a, ok := v.adapters[move.StrategyID]
		if !ok {
			continue
		}
		got, err := a.Withdraw(ctx, v.address, move.Amount)
		if err != nil {
			v.log.Error().Err(err).Uint64("strategyID", uint64(move.StrategyID)).Msg("Rebalance withdrawal failed, skipping")
			report.Failures = append(report.Failures, v.reportFailure(move.StrategyID, "withdraw", err))
			continue
		}
		v.track(move.StrategyID, got.Neg())
		freed = freed.Add(got)
		move.Amount = got
		report.Moves = append(report.Moves, move)
	}

	for _, move := range planner.FitDeposits(plan.Deposits, freed) {
		a, ok := v.adapters[move.StrategyID]
		if !ok {
			continue
		}
		if err := v.depositInto(ctx, move.StrategyID, a, move.Amount); err != nil {
			v.log.Error().Err(err).Uint64("strategyID", uint64(move.StrategyID)).Msg("Rebalance deposit failed, funds stay in reserve")
			report.Failures = append(report.Failures, v.reportFailure(move.StrategyID, "deposit", err))
			continue
		}
		report.Moves = append(report.Moves, move)
	}

	report.Executed = true
	v.emitter.Emit(&events.RebalancedData{Source: vaultSource, Moves: report.Moves})
	v.log.Info().Int("moves", len(report.Moves)).Int("failures", len(report.Failures)).Msg("Rebalanced strategies")
	return report, nil
}

func mapValues(m map[types.StrategyID]sdkmath.Int) []sdkmath.Int {
	out := make([]sdkmath.Int, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// Harvest harvests every active strategy, feeds each one's current APY to the engine and aggregates
// the yield. Failing strategies are reported and skipped.
func (v *Vault) Harvest(ctx context.Context, caller types.Address) (types.HarvestReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	report := types.HarvestReport{TotalYield: sdkmath.ZeroInt()}
	if err := v.onlyOwner(caller); err != nil {
		return report, err
	}

	for _, rec := range v.manager.ActiveStrategies() {
		a, ok := v.adapters[rec.ID]
		if !ok {
			continue
		}
		yield, err := a.Harvest(ctx, v.address)
		if err != nil {
			v.log.Error().Err(err).Uint64("strategyID", uint64(rec.ID)).Msg("Harvest failed, skipping strategy")
			report.Failures = append(report.Failures, v.reportFailure(rec.ID, "harvest", err))
			continue
		}
		v.track(rec.ID, yield)
		entry := types.StrategyYield{StrategyID: rec.ID, Yield: yield, APY: rec.LastAPY}
		if apy, err := a.CurrentAPY(ctx); err != nil {
			v.log.Warn().Err(err).Uint64("strategyID", uint64(rec.ID)).Msg("APY unavailable after harvest")
		} else if err := v.manager.UpdateAPY(v.address, rec.ID, apy); err != nil {
			v.log.Warn().Err(err).Uint64("strategyID", uint64(rec.ID)).Msg("Failed to record APY")
		} else {
			entry.APY = apy
		}
		report.Yields = append(report.Yields, entry)
		report.TotalYield = report.TotalYield.Add(yield)
	}

	v.emitter.Emit(&events.HarvestedData{Source: vaultSource, Yield: report.TotalYield})
	v.log.Info().
		Str("totalYield", report.TotalYield.String()).
		Int("failures", len(report.Failures)).
		Msg("Harvest completed")
	return report, nil
}

// EmergencyWithdraw pulls everything out of every strategy into the reserve. Whatever an adapter
// returns is kept even when it reports a failure.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller types.Address) (sdkmath.Int, []types.StrategyFailure, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	recovered := sdkmath.ZeroInt()
	if err := v.onlyOwner(caller); err != nil {
		return recovered, nil, err
	}

	var failures []types.StrategyFailure
	for _, rec := range v.manager.Strategies() {
		a, ok := v.adapters[rec.ID]
		if !ok {
			continue
		}
		got, err := a.WithdrawAll(ctx, v.address)
		if !got.IsNil() {
			recovered = recovered.Add(got)
			v.track(rec.ID, got.Neg())
		}
		if err == nil {
			v.lastKnown[rec.ID] = sdkmath.ZeroInt()
		} else {
			v.log.Error().Err(err).Uint64("strategyID", uint64(rec.ID)).Msg("Emergency withdrawal incomplete")
			failures = append(failures, v.reportFailure(rec.ID, "withdraw_all", err))
		}
	}

	v.emitter.Emit(&events.EmergencyWithdrawnData{Recovered: recovered, Failures: len(failures)})
	v.log.Warn().Str("recovered", recovered.String()).Int("failures", len(failures)).Msg("Emergency withdrawal")
	return recovered, failures, nil
}
