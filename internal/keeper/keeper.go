/*

This file contains the maintenance keeper. A cycle harvests every strategy, deploys the reserve above
its target, rebalances when the allocation engine reports drift and persists a snapshot of the outcome.
Cycles are triggered on a cron schedule or on demand and never overlap.

*/

package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

// DefaultSchedule runs a cycle every fifteen minutes. Schedules use the six-field cron format.
const DefaultSchedule = "0 */15 * * * *"

var ErrCycleInProgress = errors.New("maintenance cycle already in progress")

// VaultOperator is the part of the vault a cycle drives.
type VaultOperator interface {
	Harvest(ctx context.Context, caller types.Address) (types.HarvestReport, error)
	AllocateToStrategies(ctx context.Context, caller types.Address) (types.AllocationReport, error)
	Rebalance(ctx context.Context, caller types.Address) (types.RebalanceReport, error)
	Summary(ctx context.Context) (types.VaultSummary, error)
	GetAllStrategiesInfo(ctx context.Context) []types.StrategyInfo
}

// SnapshotStore numbers cycles and persists their snapshots.
type SnapshotStore interface {
	IncrementCycleNumber(ctx context.Context) (uint64, error)
	SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error)
}

// MemoryStore keeps the cycle counter and the latest snapshot in memory. It backs dry runs without a
// database.
type MemoryStore struct {
	cycle atomic.Uint64
	mu    sync.Mutex
	last  *types.CycleSnapshot
	saved int64
}

func (s *MemoryStore) IncrementCycleNumber(context.Context) (uint64, error) {
	return s.cycle.Add(1), nil
}

func (s *MemoryStore) SaveCycleSnapshot(_ context.Context, snapshot types.CycleSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	s.last = &snapshot
	return s.saved, nil
}

// Last returns the most recently saved snapshot.
func (s *MemoryStore) Last() (types.CycleSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return types.CycleSnapshot{}, false
	}
	return *s.last, true
}

// Config holds the keeper's dependencies.
type Config struct {
	Vault    VaultOperator
	Store    SnapshotStore
	Operator types.Address // the vault owner; maintenance operations are owner-gated
	Schedule string
}

// Keeper runs maintenance cycles against a vault.
type Keeper struct {
	logger   zerolog.Logger
	vault    VaultOperator
	store    SnapshotStore
	operator types.Address
	schedule string

	running sync.Mutex
	cron    *cron.Cron
	local   atomic.Uint64
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return errors.Join(types.ErrInvalidParameter, errors.New("vault cannot be nil"))
	}
	if cfg.Operator == "" {
		return errors.Join(types.ErrInvalidParameter, errors.New("operator address cannot be empty"))
	}
	return nil
}

// New creates a keeper. A nil store selects an in-memory one.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}
	if cfg.Store == nil {
		cfg.Store = &MemoryStore{}
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(cfg.Schedule); err != nil {
		return nil, errors.Join(types.ErrInvalidParameter, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err))
	}

	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		vault:    cfg.Vault,
		store:    cfg.Store,
		operator: cfg.Operator,
		schedule: cfg.Schedule,
	}
	k.logger.Info().Str("schedule", k.schedule).Msg("Keeper created")
	return k, nil
}

func (k *Keeper) Schedule() string { return k.schedule }

// Start registers the cycle on the cron schedule and starts it. Cycles run with ctx until Stop.
func (k *Keeper) Start(ctx context.Context) error {
	if k.cron != nil {
		return errors.New("keeper already started")
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(k.schedule, func() {
		if _, err := k.RunCycle(ctx); err != nil {
			k.logger.Error().Err(err).Msg("Scheduled maintenance cycle finished with errors")
		}
	}); err != nil {
		return fmt.Errorf("register maintenance cycle: %w", err)
	}
	c.Start()
	k.cron = c
	k.logger.Info().Str("schedule", k.schedule).Msg("Keeper started")
	return nil
}

// Stop stops the schedule and waits for a running cycle to finish.
func (k *Keeper) Stop() {
	if k.cron == nil {
		return
	}
	<-k.cron.Stop().Done()
	k.cron = nil
	k.logger.Info().Msg("Keeper stopped")
}

func (k *Keeper) nextCycle(ctx context.Context, log zerolog.Logger) uint64 {
	n, err := k.store.IncrementCycleNumber(ctx)
	if err != nil {
		n = k.local.Add(1)
		log.Warn().Err(err).Uint64("cycle", n).Msg("Cycle counter unavailable, using local count")
		return n
	}
	k.local.Store(n)
	return n
}

// RunCycle executes one maintenance cycle and persists its snapshot. Stage errors do not stop the
// later stages; they are joined into the returned error and recorded on the snapshot.
func (k *Keeper) RunCycle(ctx context.Context) (types.CycleSnapshot, error) {
	if !k.running.TryLock() {
		return types.CycleSnapshot{}, ErrCycleInProgress
	}
	defer k.running.Unlock()

	start := time.Now()
	cycleID := uuid.New().String()
	log := k.logger.With().Str("cycle_id", cycleID).Logger()

	snap := types.CycleSnapshot{
		CycleNumber:       k.nextCycle(ctx, log),
		CycleID:           cycleID,
		Timestamp:         start,
		TotalAssetsBefore: sdkmath.ZeroInt(),
		TotalAssetsAfter:  sdkmath.ZeroInt(),
		Reserve:           sdkmath.ZeroInt(),
		TotalShares:       sdkmath.ZeroInt(),
		HarvestYield:      sdkmath.ZeroInt(),
		Deployed:          sdkmath.ZeroInt(),
	}
	log = log.With().Uint64("cycle", snap.CycleNumber).Logger()
	log.Info().Msg("--- Starting maintenance cycle ---")

	var errs []error
	stageErr := func(stage string, err error) {
		log.Error().Err(err).Str("stage", stage).Msg("Cycle stage failed")
		errs = append(errs, fmt.Errorf("%s: %w", stage, err))
	}

	if before, err := k.vault.Summary(ctx); err != nil {
		stageErr("summary", err)
	} else {
		snap.TotalAssetsBefore = before.TotalAssets
	}

	if harvest, err := k.vault.Harvest(ctx, k.operator); err != nil {
		stageErr("harvest", err)
	} else {
		snap.HarvestYield = harvest.TotalYield
		snap.Failures = append(snap.Failures, harvest.Failures...)
		log.Info().Str("yield", harvest.TotalYield.String()).Msg("Harvest stage completed")
	}

	if alloc, err := k.vault.AllocateToStrategies(ctx, k.operator); err != nil {
		stageErr("allocate", err)
	} else {
		snap.Deployed = alloc.Deployed
		snap.Moves = append(snap.Moves, alloc.Moves...)
		snap.Failures = append(snap.Failures, alloc.Failures...)
		log.Info().Str("deployed", alloc.Deployed.String()).Msg("Allocation stage completed")
	}

	if rebalance, err := k.vault.Rebalance(ctx, k.operator); err != nil {
		stageErr("rebalance", err)
	} else {
		snap.Rebalanced = rebalance.Executed
		snap.Moves = append(snap.Moves, rebalance.Moves...)
		snap.Failures = append(snap.Failures, rebalance.Failures...)
		log.Info().Bool("executed", rebalance.Executed).Msg("Rebalance stage completed")
	}

	if after, err := k.vault.Summary(ctx); err != nil {
		stageErr("summary", err)
	} else {
		snap.TotalAssetsAfter = after.TotalAssets
		snap.Reserve = after.Reserve
		snap.TotalShares = after.TotalShares
	}

	for _, info := range k.vault.GetAllStrategiesInfo(ctx) {
		snap.Allocations = append(snap.Allocations, types.StrategyAllocation{
			StrategyID:  info.ID,
			Name:        info.Name,
			TotalAssets: info.TotalAssets,
			APY:         info.APY,
		})
	}

	if len(errs) > 0 {
		snap.Error = errors.Join(errs...).Error()
	}
	snap.Duration = time.Since(start)

	if _, err := k.store.SaveCycleSnapshot(ctx, snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist cycle snapshot")
		errs = append(errs, fmt.Errorf("save snapshot: %w", err))
	}

	log.Info().
		Dur("duration", snap.Duration).
		Int("moves", len(snap.Moves)).
		Int("failures", len(snap.Failures)).
		Msg("--- Maintenance cycle completed ---")
	return snap, errors.Join(errs...)
}
