/*

This file contains the vault side of the strategy registry: adapters are registered with the
allocation engine under the id it assigns, and removed only once their capital is back in reserve.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/adapter"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/types"
)

func failure(rec types.StrategyRecord, operation string, err error) types.StrategyFailure {
	return types.StrategyFailure{StrategyID: rec.ID, Name: rec.Name, Operation: operation, Error: err.Error()}
}

// reportFailure emits a StrategyCallFailed event for an adapter call a batch skipped.
func (v *Vault) reportFailure(id types.StrategyID, operation string, err error) types.StrategyFailure {
	f := types.StrategyFailure{StrategyID: id, Operation: operation, Error: err.Error()}
	if rec, lookupErr := v.manager.Strategy(id); lookupErr == nil {
		f.Name = rec.Name
	}
	v.emitter.Emit(&events.StrategyCallFailedData{Failure: f})
	return f
}

func (v *Vault) byHoldingDesc(holdings map[types.StrategyID]sdkmath.Int) []types.StrategyID {
	ids := make([]types.StrategyID, 0, len(holdings))
	for id := range holdings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		hi, hj := holdings[ids[i]], holdings[ids[j]]
		if !hi.Equal(hj) {
			return hi.GT(hj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// AddStrategy registers an adapter with the allocation engine. Name and address default to the
// adapter's own. The adapter's current APY becomes the strategy's first sample.
func (v *Vault) AddStrategy(ctx context.Context, caller types.Address, params types.StrategyParams, a adapter.Strategy) (types.StrategyID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.onlyOwner(caller); err != nil {
		return 0, err
	}
	if a == nil {
		return 0, errors.Join(types.ErrInvalidParameter, errors.New("adapter is required"))
	}
	if params.Name == "" {
		params.Name = a.Name()
	}
	if params.Address == "" {
		params.Address = a.Address()
	}
	for _, existing := range v.adapters {
		if existing.Address() == a.Address() {
			return 0, errors.Join(types.ErrInvalidParameter, fmt.Errorf("adapter %s already registered", a.Address()))
		}
	}

	id, err := v.manager.AddStrategy(caller, params)
	if err != nil {
		return 0, err
	}
	v.adapters[id] = a
	v.lastKnown[id] = sdkmath.ZeroInt()

	if apy, err := a.CurrentAPY(ctx); err != nil {
		v.log.Warn().Err(err).Uint64("strategyID", uint64(id)).Msg("Initial APY unavailable")
	} else if err := v.manager.UpdateAPY(v.address, id, apy); err != nil {
		v.log.Warn().Err(err).Uint64("strategyID", uint64(id)).Msg("Failed to record initial APY")
	}
	return id, nil
}

// RemoveStrategy withdraws all capital of a strategy back to the reserve and then unregisters it.
// If the withdrawal fails the registry is left untouched.
func (v *Vault) RemoveStrategy(ctx context.Context, caller types.Address, id types.StrategyID) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.onlyOwner(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a, ok := v.adapters[id]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", types.ErrStrategyNotFound, id)
	}
	recovered, err := a.WithdrawAll(ctx, v.address)
	if err != nil {
		return recovered, fmt.Errorf("withdraw strategy %d before removal: %w", id, err)
	}
	if err := v.manager.RemoveStrategy(caller, id); err != nil {
		return recovered, err
	}
	delete(v.adapters, id)
	delete(v.lastKnown, id)
	v.log.Info().Uint64("strategyID", uint64(id)).Str("recovered", recovered.String()).Msg("Strategy removed")
	return recovered, nil
}

func (v *Vault) UpdateStrategyWeight(caller types.Address, id types.StrategyID, weight uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.onlyOwner(caller); err != nil {
		return err
	}
	if _, ok := v.adapters[id]; !ok {
		return fmt.Errorf("%w: %d", types.ErrStrategyNotFound, id)
	}
	return v.manager.UpdateWeight(caller, id, weight)
}

// Adapter returns the adapter registered under id.
func (v *Vault) Adapter(id types.StrategyID) (adapter.Strategy, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.adapters[id]
	return a, ok
}

// GetAllStrategiesInfo aggregates the registry, live adapter readings and performance metrics. An
// adapter that cannot be read is reported with its last known assets and the error.
func (v *Vault) GetAllStrategiesInfo(ctx context.Context) []types.StrategyInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	records := v.manager.Strategies()
	out := make([]types.StrategyInfo, 0, len(records))
	for _, rec := range records {
		info := types.StrategyInfo{
			ID:               rec.ID,
			Name:             rec.Name,
			Address:          rec.Address,
			TotalAssets:      sdkmath.ZeroInt(),
			APY:              rec.LastAPY,
			Weight:           rec.Weight,
			RiskScore:        rec.RiskScore,
			MinAllocationBps: rec.MinAllocationBps,
			MaxAllocationBps: rec.MaxAllocationBps,
			IsActive:         rec.IsActive,
			PerformanceScore: rec.PerformanceScore,
		}
		if rec.History != nil {
			info.APYHistory = rec.History.Values()
		}
		if sharpe, err := v.manager.CalculateSharpeRatio(rec.ID); err == nil {
			info.SharpeRatio = sharpe
		}

		a, ok := v.adapters[rec.ID]
		if !ok {
			out = append(out, info)
			continue
		}
		var errs []error
		if assets, err := a.TotalAssets(ctx); err != nil {
			errs = append(errs, err)
			if cached, known := v.lastKnown[rec.ID]; known {
				info.TotalAssets = cached
			}
		} else {
			v.lastKnown[rec.ID] = assets
			info.TotalAssets = assets
		}
		if apy, err := a.CurrentAPY(ctx); err != nil {
			errs = append(errs, err)
		} else {
			info.APY = apy
		}
		if len(errs) > 0 {
			info.Error = errors.Join(errs...).Error()
		}
		out = append(out, info)
	}
	return out
}
