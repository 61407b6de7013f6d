package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// TRANSACTIONS (generic.TransactionStore)
// =============================================================================

const transactionColumns = `t.id, t.agent_id, t.type_id, t.value, t.active, t.occurred_at, t.created_at`

func (s *Store) AppendTransaction(ctx context.Context, tx generic.Transaction) (generic.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getAgent(ctx, tx.AgentID); err != nil {
		return generic.Transaction{}, err
	}
	if _, err := s.getTransactionType(ctx, tx.TypeID); err != nil {
		return generic.Transaction{}, err
	}

	id, err := s.insert(ctx, "append transaction",
		`INSERT INTO transactions (agent_id, type_id, value, active, occurred_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(tx.AgentID), int64(tx.TypeID), tx.Value.Value.String(), tx.Active,
		formatTime(tx.OccurredAt), formatTime(tx.CreatedAt))
	if err != nil {
		return generic.Transaction{}, err
	}
	tx.ID = generic.TransactionID(id)
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id generic.TransactionID) (generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx, "get transaction",
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, int64(id))
	if err != nil {
		return generic.Transaction{}, err
	}
	if len(txs) == 0 {
		return generic.Transaction{}, &generic.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return txs[0], nil
}

// DeactivateTransaction is the only UPDATE ever issued against transactions.
func (s *Store) DeactivateTransaction(ctx context.Context, id generic.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, "deactivate transaction",
		`UPDATE transactions SET active = ? WHERE id = ?`, false, int64(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.AgentID != 0 {
		where = append(where, "t.agent_id = ?")
		args = append(args, int64(filter.AgentID))
	}
	if !filter.IncludeInactive {
		where = append(where, "t.active = ?")
		args = append(args, true)
	}
	if !filter.From.IsZero() {
		where = append(where, "t.occurred_at >= ?")
		args = append(args, formatTime(filter.From.Start()))
	}
	if !filter.To.IsZero() {
		where = append(where, "t.occurred_at < ?")
		args = append(args, formatTime(filter.To.End()))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.occurred_at, t.id`

	return s.queryTransactions(ctx, "list transactions", query, args...)
}

// PeriodTransactions selects the agent's own records and every record of a
// shared type in a single statement, so the result is one consistent read.
func (s *Store) PeriodTransactions(ctx context.Context, q generic.PeriodQuery) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := "t.agent_id = ?"
	args := []any{true, formatTime(q.From), formatTime(q.To), int64(q.AgentID)}
	if len(q.SharedTypes) > 0 {
		scope = "(t.agent_id = ? OR t.type_id IN (" + placeholders(len(q.SharedTypes)) + "))"
		for _, id := range q.SharedTypes {
			args = append(args, int64(id))
		}
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t
		WHERE t.active = ? AND t.occurred_at >= ? AND t.occurred_at < ? AND ` + scope + `
		ORDER BY t.occurred_at, t.id`

	return s.queryTransactions(ctx, "period transactions", query, args...)
}

func (s *Store) LatestInitialBalance(ctx context.Context, agentID generic.AgentID, before time.Time) (*generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx, "latest initial balance",
		`SELECT `+transactionColumns+` FROM transactions t
		JOIN transaction_types tt ON tt.id = t.type_id
		WHERE t.agent_id = ? AND t.active = ? AND tt.kind = ? AND t.occurred_at < ?
		ORDER BY t.occurred_at DESC, t.id DESC
		LIMIT 1`,
		int64(agentID), true, string(generic.KindInitialBalance), formatTime(before))
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (s *Store) queryTransactions(ctx context.Context, op, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, s.fail(op, err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return transactions, nil
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx         generic.Transaction
		value      string
		occurredAt string
		createdAt  string
	)
	if err := rows.Scan(&tx.ID, &tx.AgentID, &tx.TypeID, &value, &tx.Active, &occurredAt, &createdAt); err != nil {
		return tx, err
	}
	var cols columns
	tx.Value = cols.amount("value", value)
	tx.OccurredAt = cols.timestamp("occurred_at", occurredAt)
	tx.CreatedAt = cols.timestamp("created_at", createdAt)
	return tx, cols.err
}

// =============================================================================
// FORMULA RULES (generic.RuleStore)
// =============================================================================

func (s *Store) ListRules(ctx context.Context, scope generic.AgentTypeID) ([]generic.FormulaRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, s.rebind(
		`SELECT scope, type_id, include_in_calculation, multiplier, sum_across_agents
		FROM formula_rules WHERE scope = ? ORDER BY type_id`), int64(scope))
	if err != nil {
		return nil, s.fail("list rules", err)
	}
	defer rows.Close()

	out := []generic.FormulaRule{}
	for rows.Next() {
		var r generic.FormulaRule
		var multiplier int
		if err := rows.Scan(&r.Scope, &r.TypeID, &r.Include, &multiplier, &r.SumAcrossAgents); err != nil {
			return nil, s.fail("scan rule", err)
		}
		r.Multiplier = generic.Multiplier(multiplier)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list rules", err)
	}
	return out, nil
}

// ReplaceRules must run inside WithTx to be atomic; outside a transaction it
// opens one itself.
func (s *Store) ReplaceRules(ctx context.Context, scope generic.AgentTypeID, rules []generic.FormulaRule) error {
	if !s.inTx {
		return s.WithTx(ctx, func(tx generic.Store) error {
			return tx.ReplaceRules(ctx, scope, rules)
		})
	}

	for _, r := range rules {
		if _, err := s.getTransactionType(ctx, r.TypeID); err != nil {
			return err
		}
	}
	if _, err := s.exec(ctx, "replace rules", `DELETE FROM formula_rules WHERE scope = ?`, int64(scope)); err != nil {
		return err
	}
	for _, r := range rules {
		_, err := s.exec(ctx, "replace rules",
			`INSERT INTO formula_rules (scope, type_id, include_in_calculation, multiplier, sum_across_agents) VALUES (?, ?, ?, ?, ?)`,
			int64(scope), int64(r.TypeID), r.Include, int(r.Multiplier), r.SumAcrossAgents)
		if err != nil {
			return err
		}
	}
	return nil
}
