/*

This file manages the persistent global cycle counter.
The counter is stored in the database so cycle numbers continue across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CurrentCycleNumber retrieves the current cycle number.
func (s *Store) CurrentCycleNumber(ctx context.Context) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	var current uint64
	err := s.db.QueryRowContext(ctx, `SELECT current_cycle FROM cycle_counter WHERE id = 1`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			stateLogger.Warn().Msg("No cycle counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	stateLogger.Debug().Uint64("currentCycle", current).Msg("Retrieved current cycle number")
	return current, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value.
func (s *Store) IncrementCycleNumber(ctx context.Context) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	query := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle`

	var next uint64
	if err := s.db.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	stateLogger.Info().Uint64("newCycle", next).Msg("Incremented cycle counter")
	return next, nil
}

// ResetCycleNumber sets the cycle counter to a specific value (for maintenance).
func (s *Store) ResetCycleNumber(ctx context.Context, cycleNumber uint64) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE cycle_counter SET current_cycle = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`),
		int64(cycleNumber))
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return errors.New("no rows updated when resetting cycle number")
	}

	stateLogger.Warn().Uint64("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
