/*
Package sqlite provides the SQLite backend of the store.

PURPOSE:
  Opens a SQLite database with go-sqlite3, migrates the schema and returns
  the shared database/sql implementation configured with the SQLite dialect.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on:
  - Multiple readers don't block
  - Single writer at a time (enforced in-process with a RWMutex)
  - closing_adjustments cascade when their closing is deleted

IN-MEMORY DATABASES:
  ":memory:" gives each pooled connection its own database, so the pool is
  pinned to one connection.

USAGE:
  store, err := sqlite.New("./data/reconciliation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New() with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - store/sqlstore: Query implementation
  - store/postgres: PostgreSQL dialect
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/reconciliation-engine/store/sqlstore"
)

// Store is the SQLite-backed generic.Store.
type Store = sqlstore.Store

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store, err := sqlstore.New(context.Background(), db, Dialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Dialect returns the SQLite dialect.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "sqlite",
		Serialize:  true,
		Schema:     schema,
		Reset:      reset,
		IsConflict: isUniqueConstraintError,
	}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS agent_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		carry_forward TEXT NOT NULL DEFAULT 'standard_result'
	)`,

	`CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type_id INTEGER NOT NULL REFERENCES agent_types(id),
		active BOOLEAN NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS transaction_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL DEFAULT 'regular'
	)`,

	// Soft-delete log: the only UPDATE allowed is active = 0
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		type_id INTEGER NOT NULL REFERENCES transaction_types(id),
		value TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	// Period aggregation (hot path)
	`CREATE INDEX IF NOT EXISTS idx_transactions_agent_occurred
		ON transactions(agent_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_type_occurred
		ON transactions(type_id, occurred_at)`,

	`CREATE TABLE IF NOT EXISTS formula_rules (
		scope INTEGER NOT NULL,
		type_id INTEGER NOT NULL REFERENCES transaction_types(id),
		include_in_calculation BOOLEAN NOT NULL,
		multiplier INTEGER NOT NULL CHECK (multiplier IN (1, -1)),
		sum_across_agents BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (scope, type_id)
	)`,

	`CREATE TABLE IF NOT EXISTS closings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		closing_date TEXT NOT NULL,
		shift_id INTEGER NOT NULL DEFAULT 0,
		opening_balance TEXT NOT NULL,
		opening_source TEXT NOT NULL,
		period_result TEXT NOT NULL,
		adjustment_amount TEXT NOT NULL DEFAULT '0',
		computed_result TEXT NOT NULL,
		final_counted TEXT NOT NULL,
		variance TEXT NOT NULL,
		observations TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	// One closing per (agent, day, shift); shift 0 means no shift
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_closings_agent_date_shift
		ON closings(agent_id, closing_date, shift_id)`,

	`CREATE TABLE IF NOT EXISTS closing_adjustments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		closing_id INTEGER NOT NULL REFERENCES closings(id) ON DELETE CASCADE,
		reason TEXT NOT NULL,
		delta TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_adjustments_closing
		ON closing_adjustments(closing_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS shifts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		scheduled_start INTEGER NOT NULL,
		scheduled_end INTEGER NOT NULL,
		actual_start TEXT,
		actual_end TEXT
	)`,
}

var reset = []string{
	`DELETE FROM closing_adjustments`,
	`DELETE FROM closings`,
	`DELETE FROM formula_rules`,
	`DELETE FROM transactions`,
	`DELETE FROM agents`,
	`DELETE FROM agent_types`,
	`DELETE FROM transaction_types`,
	`DELETE FROM shifts`,
	`DELETE FROM sqlite_sequence`,
}
