package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/elys-network/yieldvault/internal/logger"
)

var stateLogger = logger.GetForComponent("state")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotInitialized is returned by every Store method called on a closed or nil store.
var ErrNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string // "disable", "require", "verify-full", etc.
	SQLitePath string
}

// DSN renders the connection string for the configured driver.
func (c DBConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store persists cycle snapshots and the global cycle counter.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	cfg.Driver = driver
	if driver == DriverSQLite && cfg.SQLitePath == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	store := &Store{db: db, driver: driver}
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	stateLogger.Info().Str("driver", driver).Msg("Connected to database")
	return store, nil
}

func (s *Store) Driver() string {
	return s.driver
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	stateLogger.Info().Msg("Closing database connection...")
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping tests if the database connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// rebind rewrites "?" placeholders into the "$n" form postgres expects.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) schema() []string {
	id, amount, stamp, doc := "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT", "TEXT", "TEXT"
	if s.driver == DriverPostgres {
		id, amount, stamp, doc = "BIGSERIAL PRIMARY KEY", "NUMERIC(78, 0)", "TIMESTAMPTZ", "JSONB"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id %[1]s,
			cycle_number BIGINT NOT NULL,
			cycle_id VARCHAR(64) NOT NULL,
			snapshot_timestamp %[3]s NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			total_assets_before %[2]s NOT NULL,
			total_assets_after %[2]s NOT NULL,
			reserve %[2]s NOT NULL,
			total_shares %[2]s NOT NULL,
			harvest_yield %[2]s NOT NULL,
			deployed %[2]s NOT NULL,
			rebalanced BOOLEAN NOT NULL DEFAULT FALSE,
			moves %[4]s,
			failures %[4]s,
			allocations %[4]s,
			error_message TEXT NOT NULL DEFAULT ''
		)`, id, amount, stamp, doc),
		`CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle_id ON cycle_snapshots(cycle_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle BIGINT NOT NULL DEFAULT 0,
			updated_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		)`, stamp),
		`INSERT INTO cycle_counter (id, current_cycle) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	}
}

// EnsureSchema applies the DDL for every table the store uses. It is safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema DDL: %w", err)
		}
	}
	stateLogger.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema removes every table the store owns.
func (s *Store) DropSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	for _, table := range []string{"cycle_snapshots", "cycle_counter"} {
		name := table
		if s.driver == DriverPostgres {
			name = pq.QuoteIdentifier(table)
		}
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	stateLogger.Warn().Msg("Database schema dropped")
	return nil
}
