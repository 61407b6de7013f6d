/*
ledger.go - Transaction posting and soft deletion

PURPOSE:
  The Ledger is the only write path for transaction records. It validates a
  posting against the agent and transaction type catalog before handing it
  to the store, and it implements the soft-delete rule.

CRITICAL INVARIANTS:
  1. IMMUTABLE: Once posted, value, agent, type and timestamp never change
  2. SOFT DELETE: Removal sets active=false, the row stays for audit
  3. NON-ZERO: A zero-value posting carries no information and is rejected

SEE ALSO:
  - store.go: Low-level persistence interface
  - reconcile/aggregation.go: Reads active transactions
*/
package generic

import (
	"context"
	"time"
)

// LedgerStore is the subset of Store the ledger needs.
type LedgerStore interface {
	GetAgent(ctx context.Context, id AgentID) (Agent, error)
	GetTransactionType(ctx context.Context, id TransactionTypeID) (TransactionType, error)
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)
	DeactivateTransaction(ctx context.Context, id TransactionID) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// PostTransaction is the validated input of Ledger.Post.
type PostTransaction struct {
	AgentID    AgentID
	TypeID     TransactionTypeID
	Value      Amount
	OccurredAt time.Time // zero means now
}

type Ledger struct {
	Store LedgerStore
	Now   func() time.Time
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Post validates and persists a new active transaction.
func (l *Ledger) Post(ctx context.Context, in PostTransaction) (Transaction, error) {
	if in.Value.IsZero() {
		return Transaction{}, &ValidationError{Field: "value", Message: "value must not be zero"}
	}
	if _, err := l.Store.GetAgent(ctx, in.AgentID); err != nil {
		return Transaction{}, WrapOp("post transaction", in.AgentID, Date{}, err)
	}
	if _, err := l.Store.GetTransactionType(ctx, in.TypeID); err != nil {
		return Transaction{}, WrapOp("post transaction", in.AgentID, Date{}, err)
	}

	now := l.Now().UTC()
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	tx, err := l.Store.AppendTransaction(ctx, Transaction{
		AgentID:    in.AgentID,
		TypeID:     in.TypeID,
		Value:      in.Value,
		Active:     true,
		OccurredAt: occurred.UTC(),
		CreatedAt:  now,
	})
	if err != nil {
		return Transaction{}, WrapOp("post transaction", in.AgentID, DateOf(occurred), err)
	}
	return tx, nil
}

// Deactivate soft-deletes a transaction. Deactivating an inactive record is
// a no-op.
func (l *Ledger) Deactivate(ctx context.Context, id TransactionID) (Transaction, error) {
	tx, err := l.Store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !tx.Active {
		return tx, nil
	}
	if err := l.Store.DeactivateTransaction(ctx, id); err != nil {
		return Transaction{}, WrapOp("deactivate transaction", tx.AgentID, DateOf(tx.OccurredAt), err)
	}
	tx.Active = false
	return tx, nil
}

// Transactions lists records matching the filter.
func (l *Ledger) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, &ValidationError{Field: "to", Message: "end date is before start date"}
	}
	return l.Store.ListTransactions(ctx, filter)
}
