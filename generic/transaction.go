package generic

import (
	"strings"
	"time"
)

// =============================================================================
// TRANSACTION TYPE
// =============================================================================

// TransactionKind tags transaction types with a reserved meaning.
type TransactionKind string

const (
	KindRegular TransactionKind = "regular"

	// KindInitialBalance marks the type whose latest transaction seeds the
	// opening balance of an agent that has no prior closing that day.
	KindInitialBalance TransactionKind = "initial_balance"
)

func (k TransactionKind) Valid() bool {
	return k == KindRegular || k == KindInitialBalance
}

type TransactionType struct {
	ID   TransactionTypeID
	Name string
	Kind TransactionKind
}

func (t *TransactionType) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if t.Kind == "" {
		t.Kind = KindRegular
	}
	if !t.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "must be regular or initial_balance"}
	}
	return nil
}

// =============================================================================
// TRANSACTION - Immutable once posted, soft-deleted via Active=false
// =============================================================================

type Transaction struct {
	ID         TransactionID
	AgentID    AgentID
	TypeID     TransactionTypeID
	Value      Amount
	Active     bool
	OccurredAt time.Time
	CreatedAt  time.Time
}

// TransactionFilter narrows transaction listings. Zero fields do not filter.
type TransactionFilter struct {
	AgentID         AgentID
	From            Date
	To              Date
	IncludeInactive bool
}

// Matches reports whether tx passes the filter.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.AgentID != 0 && tx.AgentID != f.AgentID {
		return false
	}
	if !f.IncludeInactive && !tx.Active {
		return false
	}
	if !f.From.IsZero() && tx.OccurredAt.Before(f.From.Start()) {
		return false
	}
	if !f.To.IsZero() && !tx.OccurredAt.Before(f.To.End()) {
		return false
	}
	return true
}

// PeriodQuery selects the transactions that can contribute to one agent's
// period result: active records inside [From, To) that either belong to the
// agent or have one of the shared types.
type PeriodQuery struct {
	AgentID     AgentID
	SharedTypes []TransactionTypeID
	From        time.Time
	To          time.Time
}

// Matches reports whether tx is selected by the query.
func (q PeriodQuery) Matches(tx Transaction) bool {
	if !tx.Active || tx.OccurredAt.Before(q.From) || !tx.OccurredAt.Before(q.To) {
		return false
	}
	if tx.AgentID == q.AgentID {
		return true
	}
	for _, id := range q.SharedTypes {
		if tx.TypeID == id {
			return true
		}
	}
	return false
}
