/*
store.go - Persistence interfaces for the reconciliation engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage;
  the engine never sees which one it talks to.

KEY INTERFACES:
  AgentStore:       Agent types and agents
  TransactionStore: Transaction types and the soft-delete transaction log
  RuleStore:        Formula rules per scope
  ClosingStore:     Closings and their adjustments
  ShiftStore:       Shift clock state
  Store:            All of the above plus WithTx

TRANSACTION LOG CONTRACT:
  Transactions are never updated or physically deleted. The only mutation
  after AppendTransaction is DeactivateTransaction (active=false).

ADJUSTMENTS:
  Append-only. They disappear only when their closing is deleted (cascade).

ATOMICITY:
  WithTx runs fn against a transactional view of the store. If fn returns
  an error every write made through the view is rolled back. Calling WithTx
  on a view reuses the enclosing transaction.

ERRORS:
  Implementations return *NotFoundError for missing records, *ConflictError
  for uniqueness violations and *StoreError for everything else.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and development
  - store/sqlstore: database/sql implementation shared by
    store/sqlite and store/postgres

SEE ALSO:
  - ledger.go: Transaction posting on top of TransactionStore
  - reconcile/: Engine components using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type AgentStore interface {
	CreateAgentType(ctx context.Context, t AgentType) (AgentType, error)
	GetAgentType(ctx context.Context, id AgentTypeID) (AgentType, error)
	ListAgentTypes(ctx context.Context) ([]AgentType, error)

	CreateAgent(ctx context.Context, a Agent) (Agent, error)
	GetAgent(ctx context.Context, id AgentID) (Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
}

type TransactionStore interface {
	CreateTransactionType(ctx context.Context, t TransactionType) (TransactionType, error)
	GetTransactionType(ctx context.Context, id TransactionTypeID) (TransactionType, error)
	ListTransactionTypes(ctx context.Context) ([]TransactionType, error)

	// AppendTransaction assigns an ID and persists the record.
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// DeactivateTransaction sets active=false. Idempotent.
	DeactivateTransaction(ctx context.Context, id TransactionID) error

	// ListTransactions returns matching records ordered by OccurredAt, ID.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// PeriodTransactions returns the records selected by q in one read.
	PeriodTransactions(ctx context.Context, q PeriodQuery) ([]Transaction, error)

	// LatestInitialBalance returns the newest active transaction of an
	// initial_balance type for the agent occurring before the given instant,
	// or nil when there is none.
	LatestInitialBalance(ctx context.Context, agentID AgentID, before time.Time) (*Transaction, error)
}

type RuleStore interface {
	// ListRules returns the rules of one scope ordered by transaction type.
	ListRules(ctx context.Context, scope AgentTypeID) ([]FormulaRule, error)

	// ReplaceRules deletes every rule of the scope and inserts rules.
	ReplaceRules(ctx context.Context, scope AgentTypeID, rules []FormulaRule) error
}

type ClosingStore interface {
	// CreateClosing assigns an ID. A second closing for the same
	// (agent, date, shift) fails with *ConflictError.
	CreateClosing(ctx context.Context, c Closing) (Closing, error)
	GetClosing(ctx context.Context, id ClosingID) (Closing, error)
	UpdateClosing(ctx context.Context, c Closing) error

	// DeleteClosing removes the closing and its adjustments.
	DeleteClosing(ctx context.Context, id ClosingID) error

	// ListClosings returns matching closings ordered by ID.
	ListClosings(ctx context.Context, filter ClosingFilter) ([]Closing, error)

	// LatestClosing returns the highest-ID closing of the agent on date.
	// When before is non-zero only closings with a lower ID are considered.
	// Returns nil when there is none.
	LatestClosing(ctx context.Context, agentID AgentID, date Date, before ClosingID) (*Closing, error)

	AppendAdjustment(ctx context.Context, a Adjustment) (Adjustment, error)

	// ListAdjustments returns the adjustments of a closing, oldest first.
	ListAdjustments(ctx context.Context, closingID ClosingID) ([]Adjustment, error)
}

type ShiftStore interface {
	CreateShift(ctx context.Context, s Shift) (Shift, error)
	GetShift(ctx context.Context, id ShiftID) (Shift, error)
	ListShifts(ctx context.Context) ([]Shift, error)
	UpdateShift(ctx context.Context, s Shift) error
}

// Store is the full persistence surface used by the engine.
type Store interface {
	AgentStore
	TransactionStore
	RuleStore
	ClosingStore
	ShiftStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can drop all data (demo scenarios).
type Resetter interface {
	Reset(ctx context.Context) error
}
