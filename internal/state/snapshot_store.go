package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

const (
	DefaultRecentCycles = 10
	MaxRecentCycles     = 100
)

func intOrZero(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseInt(column, raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid %s value %q", column, raw)
	}
	return v, nil
}

func marshalColumn(column string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	return string(raw), nil
}

// SaveCycleSnapshot saves a complete cycle snapshot and returns its row id.
func (s *Store) SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	moves, err := marshalColumn("moves", snapshot.Moves)
	if err != nil {
		return 0, err
	}
	failures, err := marshalColumn("failures", snapshot.Failures)
	if err != nil {
		return 0, err
	}
	allocations, err := marshalColumn("allocations", snapshot.Allocations)
	if err != nil {
		return 0, err
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now()
	}

	query := s.rebind(`
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, duration_ms,
			total_assets_before, total_assets_after, reserve, total_shares,
			harvest_yield, deployed, rebalanced,
			moves, failures, allocations, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING snapshot_id`)

	var snapshotID int64
	err = s.db.QueryRowContext(ctx, query,
		int64(snapshot.CycleNumber), snapshot.CycleID, snapshot.Timestamp.UTC().Format(time.RFC3339Nano), snapshot.Duration.Milliseconds(),
		intOrZero(snapshot.TotalAssetsBefore), intOrZero(snapshot.TotalAssetsAfter), intOrZero(snapshot.Reserve), intOrZero(snapshot.TotalShares),
		intOrZero(snapshot.HarvestYield), intOrZero(snapshot.Deployed), snapshot.Rebalanced,
		moves, failures, allocations, snapshot.Error,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	stateLogger.Info().
		Int64("snapshot_id", snapshotID).
		Uint64("cycle_number", snapshot.CycleNumber).
		Str("total_assets", intOrZero(snapshot.TotalAssetsAfter)).
		Msg("Cycle snapshot saved to database")
	return snapshotID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.CycleSnapshot, error) {
	var (
		snap                                                types.CycleSnapshot
		stamp                                               string
		durationMs                                          int64
		before, after, reserve, shares, harvested, deployed string
		moves, failures, allocations                        string
	)
	if err := row.Scan(
		&snap.CycleNumber, &snap.CycleID, &stamp, &durationMs,
		&before, &after, &reserve, &shares,
		&harvested, &deployed, &snap.Rebalanced,
		&moves, &failures, &allocations, &snap.Error,
	); err != nil {
		return snap, fmt.Errorf("failed to scan cycle snapshot: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return snap, fmt.Errorf("invalid snapshot_timestamp %q: %w", stamp, err)
	}
	snap.Timestamp = ts
	snap.Duration = time.Duration(durationMs) * time.Millisecond

	amounts := []struct {
		column string
		raw    string
		dst    *sdkmath.Int
	}{
		{"total_assets_before", before, &snap.TotalAssetsBefore},
		{"total_assets_after", after, &snap.TotalAssetsAfter},
		{"reserve", reserve, &snap.Reserve},
		{"total_shares", shares, &snap.TotalShares},
		{"harvest_yield", harvested, &snap.HarvestYield},
		{"deployed", deployed, &snap.Deployed},
	}
	for _, a := range amounts {
		if *a.dst, err = parseInt(a.column, a.raw); err != nil {
			return snap, err
		}
	}

	docs := []struct {
		column string
		raw    string
		dst    any
	}{
		{"moves", moves, &snap.Moves},
		{"failures", failures, &snap.Failures},
		{"allocations", allocations, &snap.Allocations},
	}
	for _, d := range docs {
		if d.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(d.raw), d.dst); err != nil {
			return snap, fmt.Errorf("failed to unmarshal %s: %w", d.column, err)
		}
	}
	return snap, nil
}

// RecentCycles returns the latest snapshots, newest first. A non-positive limit selects the
// default and the limit is capped at MaxRecentCycles.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = DefaultRecentCycles
	}
	if limit > MaxRecentCycles {
		limit = MaxRecentCycles
	}

	query := s.rebind(`
		SELECT cycle_number, cycle_id, snapshot_timestamp, duration_ms,
			total_assets_before, total_assets_after, reserve, total_shares,
			harvest_yield, deployed, rebalanced,
			COALESCE(moves, 'null'), COALESCE(failures, 'null'), COALESCE(allocations, 'null'), error_message
		FROM cycle_snapshots
		ORDER BY cycle_number DESC, snapshot_id DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	snapshots := make([]types.CycleSnapshot, 0, limit)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent cycles: %w", err)
	}
	return snapshots, nil
}
