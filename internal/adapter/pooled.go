/*

This file contains the provider ledger and internal allocator shared by the adapters that spread
their capital over several providers or pools.

Allocation ranks the active records within the adapter's risk tolerance by risk-adjusted APY and
distributes 10000 bps in proportion, capping every record at the single-provider maximum. When the
caps cannot absorb 10000 bps, every eligible record gets its cap and the rest stays idle.

*/

package adapter

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

const (
	DefaultAdapterRiskTolerance = 70
	MaxProviders                = 16
)

// venue is one provider or pool position as seen by the shared ledger.
type venue interface {
	Address() types.Address
	enter(ctx context.Context, from types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	exit(ctx context.Context, to types.Address, units sdkmath.Int) (sdkmath.Int, error)
	value(ctx context.Context, units sdkmath.Int) (sdkmath.Int, error)
	collect(ctx context.Context, owner types.Address) (sdkmath.Int, error)
	// refresh updates the observed fields of rec and reports whether the exchange rate moved.
	refresh(ctx context.Context, rec *types.ProviderRecord) (bool, error)
}

// PooledOptions tunes the internal allocator.
type PooledOptions struct {
	RiskTolerance        uint64
	MaxSingleProviderBps uint64
}

func (o PooledOptions) withDefaults() PooledOptions {
	if o.RiskTolerance == 0 {
		o.RiskTolerance = DefaultAdapterRiskTolerance
	}
	if o.MaxSingleProviderBps == 0 {
		o.MaxSingleProviderBps = types.DefaultMaxSingleProviderBps
	}
	return o
}

func (o PooledOptions) validate() error {
	if o.RiskTolerance > types.MaxRiskScore {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("risk tolerance %d exceeds %d", o.RiskTolerance, types.MaxRiskScore))
	}
	if o.MaxSingleProviderBps > utils.BpsDenominator {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("single provider cap %d bps exceeds 10000", o.MaxSingleProviderBps))
	}
	return nil
}

type pooled struct {
	base
	isPool  bool
	options PooledOptions

	records map[types.ProviderID]*types.ProviderRecord
	venues  map[types.ProviderID]venue
	order   []types.ProviderID
	nextID  types.ProviderID
}

func newPooled(cfg Config, options PooledOptions, isPool bool) (pooled, error) {
	b, err := newBase(cfg)
	if err != nil {
		return pooled{}, err
	}
	options = options.withDefaults()
	if err := options.validate(); err != nil {
		return pooled{}, err
	}
	return pooled{
		base:    b,
		isPool:  isPool,
		options: options,
		records: make(map[types.ProviderID]*types.ProviderRecord),
		venues:  make(map[types.ProviderID]venue),
		nextID:  1,
	}, nil
}

func (a *pooled) label() string {
	if a.isPool {
		return "pool"
	}
	return "provider"
}

func (a *pooled) addVenueLocked(caller types.Address, rec types.ProviderRecord, v venue) (types.ProviderID, error) {
	if err := a.onlyOwner(caller); err != nil {
		return 0, err
	}
	if rec.RiskScore > types.MaxRiskScore {
		return 0, errors.Join(types.ErrInvalidParameter, errors.New("risk score too high"))
	}
	if len(a.order) >= MaxProviders {
		return 0, fmt.Errorf("%w: %d %ss", types.ErrRegistryFull, MaxProviders, a.label())
	}
	for _, existing := range a.records {
		if existing.Target == v.Address() {
			return 0, errors.Join(types.ErrInvalidParameter, fmt.Errorf("%s %s already registered", a.label(), v.Address()))
		}
	}

	id := a.nextID
	a.nextID++
	rec.ID = id
	rec.Target = v.Address()
	rec.IsActive = true
	rec.Principal = sdkmath.ZeroInt()
	rec.Position = sdkmath.ZeroInt()
	a.records[id] = &rec
	a.venues[id] = v
	a.order = append(a.order, id)
	a.allocateLocked()

	a.log.Info().
		Uint64("providerID", uint64(id)).
		Str("target", string(rec.Target)).
		Uint64("apy", rec.APY).
		Uint64("riskScore", rec.RiskScore).
		Msgf("Added %s", a.label())
	a.emitter.Emit(&events.ProviderAddedData{
		Adapter:    a.name,
		ProviderID: id,
		Target:     rec.Target,
		Kind:       rec.Kind,
		APY:        rec.APY,
		RiskScore:  rec.RiskScore,
		IsPool:     a.isPool,
	})
	return id, nil
}

func (a *pooled) get(id types.ProviderID) (*types.ProviderRecord, error) {
	rec, ok := a.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrProviderNotFound, id)
	}
	return rec, nil
}

func (a *pooled) setActive(caller types.Address, id types.ProviderID, active bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyOwner(caller); err != nil {
		return err
	}
	rec, err := a.get(id)
	if err != nil {
		return err
	}
	if rec.IsActive == active {
		return nil
	}
	rec.IsActive = active
	a.allocateLocked()
	a.emitter.Emit(&events.ProviderStatusData{Adapter: a.name, ProviderID: id, Active: active})
	return nil
}

// DeactivateProvider stops new capital from reaching a provider. Its position stays in place until
// withdrawn or rebalanced away.
func (a *pooled) DeactivateProvider(caller types.Address, id types.ProviderID) error {
	return a.setActive(caller, id, false)
}

func (a *pooled) ReactivateProvider(caller types.Address, id types.ProviderID) error {
	return a.setActive(caller, id, true)
}

// SetProviderAPY records a new APY observation for a provider and re-ranks.
func (a *pooled) SetProviderAPY(caller types.Address, id types.ProviderID, apyBps uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyOwnerOrVault(caller); err != nil {
		return err
	}
	rec, err := a.get(id)
	if err != nil {
		return err
	}
	old := rec.APY
	rec.APY = apyBps
	a.allocateLocked()
	a.emitter.Emit(&events.ProviderAPYData{Adapter: a.name, ProviderID: id, Old: old, New: apyBps})
	return nil
}

// SetRiskTolerance bounds the provider risk this adapter accepts, 0..100.
func (a *pooled) SetRiskTolerance(caller types.Address, tolerance uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyOwner(caller); err != nil {
		return err
	}
	if tolerance > types.MaxRiskScore {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("risk tolerance %d exceeds %d", tolerance, types.MaxRiskScore))
	}
	a.options.RiskTolerance = tolerance
	a.allocateLocked()
	return nil
}

func (a *pooled) RiskTolerance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.options.RiskTolerance
}

// Providers returns copies of the ledger in registration order.
func (a *pooled) Providers() []types.ProviderRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.ProviderRecord, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id].Clone())
	}
	return out
}

// allocateLocked recomputes AllocationBps for every record and reports whether any is positive.
func (a *pooled) allocateLocked() bool {
	var eligible []*types.ProviderRecord
	for _, id := range a.order {
		rec := a.records[id]
		rec.AllocationBps = 0
		if rec.IsActive && rec.RiskScore <= a.options.RiskTolerance {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		return false
	}

	capBps := a.options.MaxSingleProviderBps
	if capBps*uint64(len(eligible)) <= utils.BpsDenominator {
		for _, rec := range eligible {
			rec.AllocationBps = capBps
		}
		return capBps > 0
	}

	scores := make([]sdkmath.Int, len(eligible))
	bounds := make([]analyzer.Bound, len(eligible))
	for i, rec := range eligible {
		scores[i] = sdkmath.NewIntFromUint64(analyzer.RiskAdjustedReturn(rec.APY, rec.RiskScore))
		bounds[i] = analyzer.Bound{Min: sdkmath.ZeroInt(), Max: sdkmath.NewIntFromUint64(capBps)}
	}
	bps, err := analyzer.WaterFill(sdkmath.NewInt(utils.BpsDenominator), scores, bounds)
	if err != nil {
		a.log.Error().Err(err).Msg("Provider allocation failed")
		return false
	}
	for i, rec := range eligible {
		rec.AllocationBps = bps[i].Uint64()
	}
	return true
}

// placeLocked spreads amount of idle funds over the allocated records. Either every part is placed
// or every placed part is unwound back to idle.
func (a *pooled) placeLocked(ctx context.Context, amount sdkmath.Int) error {
	if !a.allocateLocked() {
		return ErrNotInitialized
	}

	var s staged
	for _, id := range a.order {
		rec := a.records[id]
		part := utils.MulBps(amount, rec.AllocationBps)
		if part.IsZero() {
			continue
		}
		v := a.venues[id]
		units := sdkmath.ZeroInt()
		err := s.Do(func() error {
			if err := a.token.Approve(ctx, a.address, v.Address(), part); err != nil {
				return err
			}
			minted, err := v.enter(ctx, a.address, part)
			units = minted
			return err
		}, func() {
			rec.Position = rec.Position.Add(units)
			rec.Principal = rec.Principal.Add(part)
		}, func() error {
			_, err := v.exit(ctx, a.address, units)
			return err
		})
		if err != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				a.log.Error().Err(rbErr).Msg("Failed to unwind partially placed deposit")
			}
			return fmt.Errorf("%w: %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
	}
	s.Commit()
	return nil
}

func (a *pooled) Deposit(ctx context.Context, caller types.Address, amount sdkmath.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if !a.allocateLocked() {
		return ErrNotInitialized
	}
	if err := a.pull(ctx, amount); err != nil {
		return err
	}
	if err := a.placeLocked(ctx, amount); err != nil {
		if refundErr := a.refund(ctx, amount); refundErr != nil {
			a.log.Error().Err(refundErr).Msg("Failed to refund vault after deposit failure")
		}
		return err
	}
	a.log.Debug().Str("amount", amount.String()).Msg("Deposit placed")
	return nil
}

// exitValueLocked removes roughly want of value from one record and returns what it paid out.
func (a *pooled) exitValueLocked(ctx context.Context, id types.ProviderID, want, value sdkmath.Int) (sdkmath.Int, error) {
	rec := a.records[id]
	if !want.IsPositive() || !value.IsPositive() || !rec.Position.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	units := rec.Position
	if want.LT(value) {
		// ceil(want * position / value)
		units = want.Mul(rec.Position).Add(value).SubRaw(1).Quo(value)
		units = sdkmath.MinInt(units, rec.Position)
	}
	paid, err := a.venues[id].exit(ctx, a.address, units)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	rec.Principal = reducePrincipal(rec.Principal, rec.Position, units)
	rec.Position = rec.Position.Sub(units)
	return paid, nil
}

type positionValue struct {
	id    types.ProviderID
	value sdkmath.Int
}

func (a *pooled) positionValuesLocked(ctx context.Context) ([]positionValue, sdkmath.Int, error) {
	var out []positionValue
	total := sdkmath.ZeroInt()
	for _, id := range a.order {
		rec := a.records[id]
		if !rec.Position.IsPositive() {
			continue
		}
		value, err := a.venues[id].value(ctx, rec.Position)
		if err != nil {
			return out, total, fmt.Errorf("%w: value of %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
		out = append(out, positionValue{id: id, value: value})
		total = total.Add(value)
	}
	return out, total, nil
}

// Withdraw pays from idle funds first, then exits providers in proportion to their value. A failing
// provider is skipped and its share is sought from the others; the call only fails when nothing
// could be withdrawn.
func (a *pooled) Withdraw(ctx context.Context, caller types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requirePositive(amount); err != nil {
		return sdkmath.ZeroInt(), err
	}

	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	need := amount.Sub(sdkmath.MinInt(idle, amount))
	collected := sdkmath.ZeroInt()
	var failures []error

	if need.IsPositive() {
		values := make(map[types.ProviderID]sdkmath.Int)
		var ids []types.ProviderID
		var weights []sdkmath.Int
		for _, id := range a.order {
			rec := a.records[id]
			if !rec.Position.IsPositive() {
				continue
			}
			value, err := a.venues[id].value(ctx, rec.Position)
			if err != nil {
				failures = append(failures, fmt.Errorf("%s %d: %w", a.label(), id, err))
				continue
			}
			values[id] = value
			ids = append(ids, id)
			weights = append(weights, value)
		}

		parts := analyzer.ProportionalSplit(need, weights)
		failed := make(map[types.ProviderID]bool)
		for i, id := range ids {
			want := sdkmath.MinInt(parts[i], values[id])
			paid, err := a.exitValueLocked(ctx, id, want, values[id])
			if err != nil {
				failed[id] = true
				failures = append(failures, fmt.Errorf("%s %d: %w", a.label(), id, err))
				a.log.Warn().Err(err).Uint64("providerID", uint64(id)).Msg("Skipping provider during withdrawal")
				continue
			}
			values[id] = values[id].Sub(sdkmath.MinInt(paid, values[id]))
			collected = collected.Add(paid)
		}

		// Cover the share of skipped providers from the ones that answered.
		for _, id := range ids {
			shortfall := need.Sub(collected)
			if !shortfall.IsPositive() {
				break
			}
			if failed[id] || !values[id].IsPositive() {
				continue
			}
			paid, err := a.exitValueLocked(ctx, id, sdkmath.MinInt(shortfall, values[id]), values[id])
			if err != nil {
				failures = append(failures, fmt.Errorf("%s %d: %w", a.label(), id, err))
				continue
			}
			collected = collected.Add(paid)
		}
	}

	out := sdkmath.MinInt(amount, sdkmath.MinInt(idle, amount).Add(collected))
	if out.IsZero() {
		return sdkmath.ZeroInt(), errors.Join(append([]error{types.ErrInsufficientLiquidity}, failures...)...)
	}
	if err := a.push(ctx, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(amount) {
		a.log.Warn().Str("requested", amount.String()).Str("withdrawn", out.String()).Msg("Partial withdrawal")
	}
	return out, nil
}

// WithdrawAll exits every position, collects pending rewards and returns all idle funds to the vault.
// Whatever could be recovered is returned to the vault even when some provider fails, and the
// failures are reported in the error.
func (a *pooled) WithdrawAll(ctx context.Context, caller types.Address) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}

	var failures []error
	for _, id := range a.order {
		rec := a.records[id]
		v := a.venues[id]
		if _, err := v.collect(ctx, a.address); err != nil {
			failures = append(failures, fmt.Errorf("collect %s %d: %w", a.label(), id, err))
		}
		if !rec.Position.IsPositive() {
			continue
		}
		if _, err := v.exit(ctx, a.address, rec.Position); err != nil {
			failures = append(failures, fmt.Errorf("exit %s %d: %w", a.label(), id, err))
			continue
		}
		rec.Position = sdkmath.ZeroInt()
		rec.Principal = sdkmath.ZeroInt()
	}

	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := a.push(ctx, idle); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(failures) > 0 {
		return idle, errors.Join(append([]error{types.ErrExternalCall}, failures...)...)
	}
	return idle, nil
}

// Harvest refreshes every record, collects rewards and compounds them back into the positions.
// Yield is the collected rewards plus any appreciation of positions above principal.
func (a *pooled) Harvest(ctx context.Context, caller types.Address) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}

	rewards := sdkmath.ZeroInt()
	appreciation := sdkmath.ZeroInt()
	marks := make(map[types.ProviderID]sdkmath.Int)
	for _, id := range a.order {
		rec := a.records[id]
		v := a.venues[id]

		changed, err := v.refresh(ctx, rec)
		if err != nil {
			a.log.Warn().Err(err).Uint64("providerID", uint64(id)).Msg("Refresh failed, keeping last observation")
		} else if changed && !a.isPool {
			a.emitter.Emit(&events.ExchangeRateData{Adapter: a.name, ProviderID: id, Rate: rec.ExchangeRate})
		}

		reward, err := v.collect(ctx, a.address)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: collect %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
		rewards = rewards.Add(reward)

		if !rec.Position.IsPositive() {
			continue
		}
		value, err := v.value(ctx, rec.Position)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: value of %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
		if gain := value.Sub(rec.Principal); gain.IsPositive() {
			appreciation = appreciation.Add(gain)
			marks[id] = value
		}
	}
	// Principal moves only once every provider has answered.
	for id, value := range marks {
		a.records[id].Principal = value
	}
	a.allocateLocked()

	if rewards.IsPositive() {
		if err := a.placeLocked(ctx, rewards); err != nil {
			a.log.Warn().Err(err).Str("rewards", rewards.String()).Msg("Compounding failed, rewards stay idle")
		}
	}

	yield := rewards.Add(appreciation)
	if yield.IsPositive() {
		a.emitter.Emit(&events.HarvestedData{Source: a.name, Yield: yield})
	}
	return yield, nil
}

// Rebalance re-applies the allocator to the adapter's current capital: over-allocated positions are
// trimmed first, then the freed funds go to under-allocated ones.
func (a *pooled) Rebalance(ctx context.Context, caller types.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.onlyOwnerOrVault(caller); err != nil {
		return err
	}
	if !a.allocateLocked() {
		return ErrNotInitialized
	}

	idle, err := a.idle(ctx)
	if err != nil {
		return err
	}
	values, invested, err := a.positionValuesLocked(ctx)
	if err != nil {
		return err
	}
	total := invested.Add(idle)
	valueOf := make(map[types.ProviderID]sdkmath.Int, len(values))
	for _, pv := range values {
		valueOf[pv.id] = pv.value
	}
	current := func(id types.ProviderID) sdkmath.Int {
		if v, ok := valueOf[id]; ok {
			return v
		}
		return sdkmath.ZeroInt()
	}

	for _, id := range a.order {
		target := utils.MulBps(total, a.records[id].AllocationBps)
		if excess := current(id).Sub(target); excess.IsPositive() {
			if _, err := a.exitValueLocked(ctx, id, excess, current(id)); err != nil {
				return fmt.Errorf("%w: trim %s %d: %w", types.ErrExternalCall, a.label(), id, err)
			}
		}
	}

	for _, id := range a.order {
		rec := a.records[id]
		target := utils.MulBps(total, rec.AllocationBps)
		deficit := target.Sub(current(id))
		if !deficit.IsPositive() {
			continue
		}
		available, err := a.idle(ctx)
		if err != nil {
			return err
		}
		deficit = sdkmath.MinInt(deficit, available)
		if !deficit.IsPositive() {
			break
		}
		v := a.venues[id]
		if err := a.token.Approve(ctx, a.address, v.Address(), deficit); err != nil {
			return fmt.Errorf("%w: approve %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
		units, err := v.enter(ctx, a.address, deficit)
		if err != nil {
			return fmt.Errorf("%w: top up %s %d: %w", types.ErrExternalCall, a.label(), id, err)
		}
		rec.Position = rec.Position.Add(units)
		rec.Principal = rec.Principal.Add(deficit)
	}

	allocations := make(map[types.ProviderID]uint64, len(a.order))
	for _, id := range a.order {
		allocations[id] = a.records[id].AllocationBps
	}
	a.emitter.Emit(&events.ProviderRebalancedData{Adapter: a.name, Allocations: allocations, IsPool: a.isPool})
	a.log.Info().Str("total", total.String()).Msgf("Rebalanced %ss", a.label())
	return nil
}

func (a *pooled) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idle, err := a.idle(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	_, invested, err := a.positionValuesLocked(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return idle.Add(invested), nil
}

// CurrentAPY weights the records' APY by position value, or by target allocation before any
// capital is placed.
func (a *pooled) CurrentAPY(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, invested, err := a.positionValuesLocked(ctx)
	if err != nil {
		return 0, err
	}
	if invested.IsPositive() {
		weighted := sdkmath.ZeroInt()
		for _, pv := range values {
			weighted = weighted.Add(pv.value.Mul(sdkmath.NewIntFromUint64(a.records[pv.id].APY)))
		}
		return weighted.Quo(invested).Uint64(), nil
	}

	var weighted, totalBps uint64
	for _, id := range a.order {
		rec := a.records[id]
		weighted += rec.APY * rec.AllocationBps
		totalBps += rec.AllocationBps
	}
	if totalBps == 0 {
		return 0, nil
	}
	return weighted / totalBps, nil
}
