/*

This file contains the allocation engine's strategy registry. Records live in an id-keyed arena;
a separate ordered index keeps iteration deterministic for the allocation math.

*/

package manager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/types"
)

var (
	errWeightNotPositive = errors.New("weight must be positive")
	errRiskTooHigh       = errors.New("risk score too high")
	errMinExceedsMax     = errors.New("min allocation exceeds max allocation")
	errMaxTooHigh        = errors.New("max allocation exceeds 10000 bps")
)

// StrategyManager is the allocation engine.
type StrategyManager struct {
	mu sync.RWMutex

	owner    types.Address
	operator types.Address
	config   Config

	strategies map[types.StrategyID]*types.StrategyRecord
	order      []types.StrategyID
	nextID     types.StrategyID

	emitter events.Emitter
	log     zerolog.Logger
	now     func() time.Time
}

func New(owner types.Address, config Config, emitter events.Emitter, log zerolog.Logger) (*StrategyManager, error) {
	if owner == "" {
		return nil, errors.Join(types.ErrInvalidParameter, errors.New("owner address is required"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &StrategyManager{
		owner:      owner,
		config:     config,
		strategies: make(map[types.StrategyID]*types.StrategyRecord),
		nextID:     1,
		emitter:    emitter,
		log:        log,
		now:        time.Now,
	}, nil
}

func (m *StrategyManager) Owner() types.Address { return m.owner }

// SetOperator allows operator, typically the vault, to feed APY samples.
func (m *StrategyManager) SetOperator(caller, operator types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	m.operator = operator
	return nil
}

func (m *StrategyManager) onlyOwner(caller types.Address) error {
	if caller != m.owner {
		return fmt.Errorf("%w: %s is not the owner", types.ErrUnauthorized, caller)
	}
	return nil
}

func (m *StrategyManager) onlyOwnerOrOperator(caller types.Address) error {
	if caller == m.owner || (m.operator != "" && caller == m.operator) {
		return nil
	}
	return fmt.Errorf("%w: %s is neither owner nor operator", types.ErrUnauthorized, caller)
}

// ValidateParams rejects zero weight, risk above MAX_RISK_SCORE and inverted bounds.
func ValidateParams(p types.StrategyParams) error {
	var errs []error
	if p.Weight == 0 {
		errs = append(errs, errWeightNotPositive)
	}
	if p.RiskScore > types.MaxRiskScore {
		errs = append(errs, errRiskTooHigh)
	}
	if p.MinAllocationBps > p.MaxAllocationBps {
		errs = append(errs, errMinExceedsMax)
	}
	if p.MaxAllocationBps > 10_000 {
		errs = append(errs, errMaxTooHigh)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{types.ErrInvalidParameter}, errs...)...)
	}
	return nil
}

func (m *StrategyManager) activeCount() int {
	n := 0
	for _, id := range m.order {
		if m.strategies[id].IsActive {
			n++
		}
	}
	return n
}

func (m *StrategyManager) get(id types.StrategyID) (*types.StrategyRecord, error) {
	rec, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrStrategyNotFound, id)
	}
	return rec, nil
}

func strategyEvent(eventType events.EventType, rec *types.StrategyRecord) *events.StrategyData {
	return &events.StrategyData{
		Type:             eventType,
		StrategyID:       rec.ID,
		Name:             rec.Name,
		Weight:           rec.Weight,
		RiskScore:        rec.RiskScore,
		MinAllocationBps: rec.MinAllocationBps,
		MaxAllocationBps: rec.MaxAllocationBps,
	}
}

// AddStrategy registers an active strategy with a fresh performance baseline.
func (m *StrategyManager) AddStrategy(caller types.Address, params types.StrategyParams) (types.StrategyID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return 0, err
	}
	if err := ValidateParams(params); err != nil {
		return 0, err
	}
	if m.activeCount() >= m.config.MaxActiveStrategies {
		return 0, fmt.Errorf("%w: %d active strategies", types.ErrRegistryFull, m.config.MaxActiveStrategies)
	}

	now := m.now()
	id := m.nextID
	m.nextID++
	rec := &types.StrategyRecord{
		ID:               id,
		Name:             params.Name,
		Address:          params.Address,
		Weight:           params.Weight,
		RiskScore:        params.RiskScore,
		MinAllocationBps: params.MinAllocationBps,
		MaxAllocationBps: params.MaxAllocationBps,
		IsActive:         true,
		History:          types.NewAPYHistory(m.config.HistoryCapacity),
		PerformanceScore: types.InitialPerformanceScore,
		AddedAt:          now,
		UpdatedAt:        now,
	}
	m.strategies[id] = rec
	m.order = append(m.order, id)

	m.log.Info().
		Uint64("strategyID", uint64(id)).
		Str("name", rec.Name).
		Uint64("weight", rec.Weight).
		Uint64("riskScore", rec.RiskScore).
		Msg("Strategy added")
	m.emitter.Emit(strategyEvent(events.StrategyAdded, rec))
	return id, nil
}

// UpdateStrategy replaces the weight, risk and bounds of a strategy. Name and address are kept
// when left empty.
func (m *StrategyManager) UpdateStrategy(caller types.Address, id types.StrategyID, params types.StrategyParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	rec, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ValidateParams(params); err != nil {
		return err
	}

	if params.Name != "" {
		rec.Name = params.Name
	}
	if params.Address != "" {
		rec.Address = params.Address
	}
	rec.Weight = params.Weight
	rec.RiskScore = params.RiskScore
	rec.MinAllocationBps = params.MinAllocationBps
	rec.MaxAllocationBps = params.MaxAllocationBps
	rec.UpdatedAt = m.now()

	m.emitter.Emit(strategyEvent(events.StrategyUpdated, rec))
	return nil
}

// UpdateWeight changes only the weight of a strategy.
func (m *StrategyManager) UpdateWeight(caller types.Address, id types.StrategyID, weight uint64) error {
	rec, err := m.Strategy(id)
	if err != nil {
		return err
	}
	return m.UpdateStrategy(caller, id, types.StrategyParams{
		Weight:           weight,
		RiskScore:        rec.RiskScore,
		MinAllocationBps: rec.MinAllocationBps,
		MaxAllocationBps: rec.MaxAllocationBps,
	})
}

func (m *StrategyManager) setActive(caller types.Address, id types.StrategyID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	rec, err := m.get(id)
	if err != nil {
		return err
	}
	if rec.IsActive == active {
		return nil
	}
	if active && m.activeCount() >= m.config.MaxActiveStrategies {
		return fmt.Errorf("%w: %d active strategies", types.ErrRegistryFull, m.config.MaxActiveStrategies)
	}
	rec.IsActive = active
	rec.UpdatedAt = m.now()

	eventType := events.StrategyDeactivated
	if active {
		eventType = events.StrategyReactivated
	}
	m.log.Info().Uint64("strategyID", uint64(id)).Bool("active", active).Msg("Strategy status changed")
	m.emitter.Emit(strategyEvent(eventType, rec))
	return nil
}

// DeactivateStrategy excludes a strategy from allocation while keeping its history.
func (m *StrategyManager) DeactivateStrategy(caller types.Address, id types.StrategyID) error {
	return m.setActive(caller, id, false)
}

func (m *StrategyManager) ReactivateStrategy(caller types.Address, id types.StrategyID) error {
	return m.setActive(caller, id, true)
}

// PauseStrategy deactivates one strategy. It does not move funds.
func (m *StrategyManager) PauseStrategy(caller types.Address, id types.StrategyID) error {
	return m.setActive(caller, id, false)
}

// EmergencyStop deactivates every strategy. It does not move funds.
func (m *StrategyManager) EmergencyStop(caller types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	deactivated := 0
	now := m.now()
	for _, id := range m.order {
		rec := m.strategies[id]
		if rec.IsActive {
			rec.IsActive = false
			rec.UpdatedAt = now
			deactivated++
		}
	}
	m.log.Warn().Int("deactivated", deactivated).Msg("Emergency stop: all strategies deactivated")
	m.emitter.Emit(&events.EmergencyStoppedData{Deactivated: deactivated})
	return nil
}

// RemoveStrategy drops a strategy from the registry. The caller is responsible for having
// withdrawn its capital first.
func (m *StrategyManager) RemoveStrategy(caller types.Address, id types.StrategyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	rec, err := m.get(id)
	if err != nil {
		return err
	}
	delete(m.strategies, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Info().Uint64("strategyID", uint64(id)).Msg("Strategy removed")
	m.emitter.Emit(strategyEvent(events.StrategyRemoved, rec))
	return nil
}

// Strategy returns a copy of one record.
func (m *StrategyManager) Strategy(id types.StrategyID) (types.StrategyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, err := m.get(id)
	if err != nil {
		return types.StrategyRecord{}, err
	}
	return rec.Clone(), nil
}

// Strategies returns copies of every record in registration order.
func (m *StrategyManager) Strategies() []types.StrategyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.StrategyRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.strategies[id].Clone())
	}
	return out
}

func (m *StrategyManager) ActiveStrategies() []types.StrategyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.StrategyRecord, 0, len(m.order))
	for _, id := range m.order {
		if rec := m.strategies[id]; rec.IsActive {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (m *StrategyManager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetRiskTolerance changes the global tolerance, 0..100.
func (m *StrategyManager) SetRiskTolerance(caller types.Address, tolerance uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	if tolerance > types.MaxRiskScore {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("risk tolerance %d exceeds %d", tolerance, types.MaxRiskScore))
	}
	old := m.config.RiskTolerance
	m.config.RiskTolerance = tolerance
	m.emitter.Emit(&events.ParameterUpdatedData{Type: events.RiskToleranceUpdated, Old: old, New: tolerance})
	return nil
}

// SetRebalanceThreshold changes the drift, in bps of the total, that triggers a rebalance.
func (m *StrategyManager) SetRebalanceThreshold(caller types.Address, thresholdBps uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.onlyOwner(caller); err != nil {
		return err
	}
	if thresholdBps == 0 || thresholdBps > 10_000 {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("rebalance threshold %d bps outside 1..10000", thresholdBps))
	}
	old := m.config.RebalanceThresholdBps
	m.config.RebalanceThresholdBps = thresholdBps
	m.emitter.Emit(&events.ParameterUpdatedData{Type: events.RebalanceThresholdUpdated, Old: old, New: thresholdBps})
	return nil
}
