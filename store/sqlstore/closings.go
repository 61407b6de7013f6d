package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// CLOSINGS (generic.ClosingStore)
// =============================================================================

const closingColumns = `id, agent_id, closing_date, shift_id, opening_balance, opening_source,
	period_result, adjustment_amount, computed_result, final_counted, variance,
	observations, status, created_by, created_at, updated_at`

func (s *Store) CreateClosing(ctx context.Context, c generic.Closing) (generic.Closing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getAgent(ctx, c.AgentID); err != nil {
		return generic.Closing{}, err
	}

	id, err := s.insert(ctx, "create closing",
		`INSERT INTO closings (agent_id, closing_date, shift_id, opening_balance, opening_source,
			period_result, adjustment_amount, computed_result, final_counted, variance,
			observations, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(c.AgentID), formatDate(c.Date), int64(c.ShiftID),
		c.OpeningBalance.Value.String(), string(c.OpeningSource),
		c.PeriodResult.Value.String(), c.AdjustmentAmount.Value.String(),
		c.ComputedResult.Value.String(), c.FinalCounted.Value.String(), c.Variance.Value.String(),
		c.Observations, string(c.Status), c.CreatedBy,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return generic.Closing{}, err
	}
	c.ID = generic.ClosingID(id)
	return c, nil
}

func (s *Store) GetClosing(ctx context.Context, id generic.ClosingID) (generic.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getClosing(ctx, id)
}

func (s *Store) getClosing(ctx context.Context, id generic.ClosingID) (generic.Closing, error) {
	closings, err := s.queryClosings(ctx, "get closing",
		`SELECT `+closingColumns+` FROM closings WHERE id = ?`, int64(id))
	if err != nil {
		return generic.Closing{}, err
	}
	if len(closings) == 0 {
		return generic.Closing{}, &generic.NotFoundError{Kind: "closing", ID: int64(id)}
	}
	return closings[0], nil
}

func (s *Store) UpdateClosing(ctx context.Context, c generic.Closing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, "update closing",
		`UPDATE closings SET agent_id = ?, closing_date = ?, shift_id = ?, opening_balance = ?,
			opening_source = ?, period_result = ?, adjustment_amount = ?, computed_result = ?,
			final_counted = ?, variance = ?, observations = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		int64(c.AgentID), formatDate(c.Date), int64(c.ShiftID), c.OpeningBalance.Value.String(),
		string(c.OpeningSource), c.PeriodResult.Value.String(), c.AdjustmentAmount.Value.String(),
		c.ComputedResult.Value.String(), c.FinalCounted.Value.String(), c.Variance.Value.String(),
		c.Observations, string(c.Status), formatTime(c.UpdatedAt), int64(c.ID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "closing", ID: int64(c.ID)}
	}
	return nil
}

// DeleteClosing relies on ON DELETE CASCADE for adjustments and also deletes
// them explicitly for databases opened without foreign key enforcement.
func (s *Store) DeleteClosing(ctx context.Context, id generic.ClosingID) error {
	if !s.inTx {
		return s.WithTx(ctx, func(tx generic.Store) error {
			return tx.DeleteClosing(ctx, id)
		})
	}

	if _, err := s.exec(ctx, "delete adjustments", `DELETE FROM closing_adjustments WHERE closing_id = ?`, int64(id)); err != nil {
		return err
	}
	res, err := s.exec(ctx, "delete closing", `DELETE FROM closings WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "closing", ID: int64(id)}
	}
	return nil
}

func (s *Store) ListClosings(ctx context.Context, filter generic.ClosingFilter) ([]generic.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.AgentID != 0 {
		where = append(where, "agent_id = ?")
		args = append(args, int64(filter.AgentID))
	}
	if !filter.From.IsZero() {
		where = append(where, "closing_date >= ?")
		args = append(args, formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "closing_date <= ?")
		args = append(args, formatDate(filter.To))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + closingColumns + ` FROM closings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	return s.queryClosings(ctx, "list closings", query, args...)
}

func (s *Store) LatestClosing(ctx context.Context, agentID generic.AgentID, date generic.Date, before generic.ClosingID) (*generic.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + closingColumns + ` FROM closings WHERE agent_id = ? AND closing_date = ?`
	args := []any{int64(agentID), formatDate(date)}
	if before != 0 {
		query += ` AND id < ?`
		args = append(args, int64(before))
	}
	query += ` ORDER BY id DESC LIMIT 1`

	closings, err := s.queryClosings(ctx, "latest closing", query, args...)
	if err != nil {
		return nil, err
	}
	if len(closings) == 0 {
		return nil, nil
	}
	return &closings[0], nil
}

func (s *Store) queryClosings(ctx context.Context, op, query string, args ...any) ([]generic.Closing, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	out := []generic.Closing{}
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, s.fail(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return out, nil
}

func scanClosing(rows *sql.Rows) (generic.Closing, error) {
	var (
		c                                         generic.Closing
		date, source, status                      string
		opening, period, legacy, computed, final string
		variance, createdAt, updatedAt            string
	)
	err := rows.Scan(&c.ID, &c.AgentID, &date, &c.ShiftID, &opening, &source,
		&period, &legacy, &computed, &final, &variance,
		&c.Observations, &status, &c.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	var cols columns
	c.Date = cols.date("closing_date", date)
	c.OpeningBalance = cols.amount("opening_balance", opening)
	c.OpeningSource = generic.OpeningSource(source)
	c.PeriodResult = cols.amount("period_result", period)
	c.AdjustmentAmount = cols.amount("adjustment_amount", legacy)
	c.ComputedResult = cols.amount("computed_result", computed)
	c.FinalCounted = cols.amount("final_counted_balance", final)
	c.Variance = cols.amount("variance", variance)
	c.Status = generic.ClosingStatus(status)
	c.CreatedAt = cols.timestamp("created_at", createdAt)
	c.UpdatedAt = cols.timestamp("updated_at", updatedAt)
	return c, cols.err
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, a generic.Adjustment) (generic.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getClosing(ctx, a.ClosingID); err != nil {
		return generic.Adjustment{}, err
	}
	id, err := s.insert(ctx, "append adjustment",
		`INSERT INTO closing_adjustments (closing_id, reason, delta, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		int64(a.ClosingID), a.Reason, a.Delta.Value.String(), a.CreatedBy, formatTime(a.CreatedAt))
	if err != nil {
		return generic.Adjustment{}, err
	}
	a.ID = generic.AdjustmentID(id)
	return a, nil
}

func (s *Store) ListAdjustments(ctx context.Context, closingID generic.ClosingID) ([]generic.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, s.rebind(
		`SELECT id, closing_id, reason, delta, created_by, created_at
		FROM closing_adjustments WHERE closing_id = ? ORDER BY created_at, id`), int64(closingID))
	if err != nil {
		return nil, s.fail("list adjustments", err)
	}
	defer rows.Close()

	out := []generic.Adjustment{}
	for rows.Next() {
		var (
			a                generic.Adjustment
			delta, createdAt string
		)
		if err := rows.Scan(&a.ID, &a.ClosingID, &a.Reason, &delta, &a.CreatedBy, &createdAt); err != nil {
			return nil, s.fail("scan adjustment", err)
		}
		var cols columns
		a.Delta = cols.amount("delta", delta)
		a.CreatedAt = cols.timestamp("created_at", createdAt)
		if cols.err != nil {
			return nil, s.fail("scan adjustment", cols.err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list adjustments", err)
	}
	return out, nil
}
