/*
Package sqlstore implements generic.Store on top of database/sql.

PURPOSE:
  One implementation of every persistence interface, shared by the SQLite
  and PostgreSQL backends. Backends contribute a Dialect: placeholder style,
  schema, reset statements and driver error classification. Queries are
  written once with '?' placeholders and rebound for numbered dialects.

KEY TABLES:
  agent_types, agents:       Catalog
  transaction_types:         Catalog with the reserved initial_balance kind
  transactions:              Soft-delete log (active flag), never updated otherwise
  formula_rules:             PRIMARY KEY (scope, type_id)
  closings:                  UNIQUE (agent_id, closing_date, shift_id)
  closing_adjustments:       ON DELETE CASCADE from closings
  shifts:                    Scheduled window + actual clock state

STORAGE FORMATS:
  Money is stored as TEXT decimal strings (exact, dialect neutral).
  Days are stored as TEXT YYYY-MM-DD.
  Instants are stored as fixed-width UTC TEXT so string order is time order.

CONCURRENCY:
  Dialects with Serialize=true (SQLite) take a process-wide RWMutex, a single
  writer at a time. PostgreSQL relies on database-level concurrency control.

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite, store/postgres: Dialects and constructors
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reconciliation-engine/generic"
)

// timeLayout is fixed width so lexicographic order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name string

	// Numbered rewrites '?' placeholders to $1, $2, ...
	Numbered bool

	// Serialize guards every call with a process-wide RWMutex.
	Serialize bool

	// TxOptions are used for WithTx.
	TxOptions *sql.TxOptions

	// Schema statements, executed in order on New.
	Schema []string

	// Reset statements, executed in order by Reset.
	Reset []string

	// IsConflict reports uniqueness (or serialization) violations.
	IsConflict func(error) bool
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rwLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}

// Store implements generic.Store.
type Store struct {
	db      *sql.DB
	q       querier
	mu      rwLocker
	dialect Dialect
	inTx    bool
}

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, q: db, dialect: dialect, mu: noLock{}}
	if dialect.Serialize {
		s.mu = &sync.RWMutex{}
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle (health checks).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range s.dialect.Reset {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return s.fail("reset", err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return s.fail("begin", err)
	}
	defer sqlTx.Rollback()

	view := &Store{db: s.db, q: sqlTx, mu: noLock{}, dialect: s.dialect, inTx: true}
	if err := fn(view); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.fail("commit", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// rebind rewrites '?' placeholders for numbered dialects.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return res, nil
}

// insert runs an INSERT ... RETURNING id statement.
func (s *Store) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	var id int64
	if err := s.q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, s.fail(op, err)
	}
	return id, nil
}

// fail classifies a driver error.
func (s *Store) fail(op string, err error) error {
	if s.dialect.IsConflict != nil && s.dialect.IsConflict(err) {
		return &generic.ConflictError{Reason: conflictReason(op)}
	}
	return &generic.StoreError{Op: op, Err: err}
}

func conflictReason(op string) string {
	switch op {
	case "create closing", "update closing":
		return "a closing already exists for this agent, date and shift"
	case "create agent type":
		return "agent type name already exists"
	case "create transaction type":
		return "transaction type name already exists"
	default:
		return op + ": conflicting write"
	}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatDate(d generic.Date) string { return d.String() }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// columns decodes TEXT columns of one row. The first value that does not
// parse is kept in err and later values are skipped; callers return err
// through fail so a corrupt row surfaces as a StoreError.
type columns struct {
	err error
}

func (c *columns) invalid(col, kind, raw string) {
	if c.err == nil {
		c.err = fmt.Errorf("column %s: invalid %s %q", col, kind, raw)
	}
}

func (c *columns) amount(col, raw string) generic.Amount {
	if c.err != nil {
		return generic.Amount{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		c.invalid(col, "amount", raw)
		return generic.Amount{}
	}
	return generic.NewAmount(d)
}

func (c *columns) timestamp(col, raw string) time.Time {
	if c.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			c.invalid(col, "timestamp", raw)
			return time.Time{}
		}
	}
	return t.UTC()
}

func (c *columns) timePtr(col string, ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := c.timestamp(col, ns.String)
	if c.err != nil {
		return nil
	}
	return &t
}

func (c *columns) date(col, raw string) generic.Date {
	if c.err != nil {
		return generic.Date{}
	}
	d, err := generic.ParseDate(col, raw)
	if err != nil {
		c.invalid(col, "date", raw)
		return generic.Date{}
	}
	return d
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return stmt[:i]
	}
	return stmt
}
