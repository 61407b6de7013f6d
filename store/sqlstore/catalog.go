package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// AGENT TYPES AND AGENTS (generic.AgentStore)
// =============================================================================

func (s *Store) CreateAgentType(ctx context.Context, t generic.AgentType) (generic.AgentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(ctx, "create agent type",
		`INSERT INTO agent_types (name, carry_forward) VALUES (?, ?)`,
		t.Name, string(t.CarryForward))
	if err != nil {
		return generic.AgentType{}, err
	}
	t.ID = generic.AgentTypeID(id)
	return t, nil
}

func (s *Store) GetAgentType(ctx context.Context, id generic.AgentTypeID) (generic.AgentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getAgentType(ctx, id)
}

func (s *Store) getAgentType(ctx context.Context, id generic.AgentTypeID) (generic.AgentType, error) {
	var t generic.AgentType
	var strategy string
	err := s.q.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, carry_forward FROM agent_types WHERE id = ?`), int64(id),
	).Scan(&t.ID, &t.Name, &strategy)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.AgentType{}, &generic.NotFoundError{Kind: "agent_type", ID: int64(id)}
	}
	if err != nil {
		return generic.AgentType{}, s.fail("get agent type", err)
	}
	t.CarryForward = generic.CarryForwardStrategy(strategy)
	return t, nil
}

func (s *Store) ListAgentTypes(ctx context.Context) ([]generic.AgentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, `SELECT id, name, carry_forward FROM agent_types ORDER BY id`)
	if err != nil {
		return nil, s.fail("list agent types", err)
	}
	defer rows.Close()

	out := []generic.AgentType{}
	for rows.Next() {
		var t generic.AgentType
		var strategy string
		if err := rows.Scan(&t.ID, &t.Name, &strategy); err != nil {
			return nil, s.fail("scan agent type", err)
		}
		t.CarryForward = generic.CarryForwardStrategy(strategy)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateAgent(ctx context.Context, a generic.Agent) (generic.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getAgentType(ctx, a.TypeID); err != nil {
		return generic.Agent{}, err
	}
	id, err := s.insert(ctx, "create agent",
		`INSERT INTO agents (name, type_id, active) VALUES (?, ?, ?)`,
		a.Name, int64(a.TypeID), a.Active)
	if err != nil {
		return generic.Agent{}, err
	}
	a.ID = generic.AgentID(id)
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, id generic.AgentID) (generic.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getAgent(ctx, id)
}

func (s *Store) getAgent(ctx context.Context, id generic.AgentID) (generic.Agent, error) {
	var a generic.Agent
	err := s.q.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, type_id, active FROM agents WHERE id = ?`), int64(id),
	).Scan(&a.ID, &a.Name, &a.TypeID, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Agent{}, &generic.NotFoundError{Kind: "agent", ID: int64(id)}
	}
	if err != nil {
		return generic.Agent{}, s.fail("get agent", err)
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]generic.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, `SELECT id, name, type_id, active FROM agents ORDER BY id`)
	if err != nil {
		return nil, s.fail("list agents", err)
	}
	defer rows.Close()

	out := []generic.Agent{}
	for rows.Next() {
		var a generic.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.TypeID, &a.Active); err != nil {
			return nil, s.fail("scan agent", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

func (s *Store) CreateTransactionType(ctx context.Context, t generic.TransactionType) (generic.TransactionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(ctx, "create transaction type",
		`INSERT INTO transaction_types (name, kind) VALUES (?, ?)`,
		t.Name, string(t.Kind))
	if err != nil {
		return generic.TransactionType{}, err
	}
	t.ID = generic.TransactionTypeID(id)
	return t, nil
}

func (s *Store) GetTransactionType(ctx context.Context, id generic.TransactionTypeID) (generic.TransactionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getTransactionType(ctx, id)
}

func (s *Store) getTransactionType(ctx context.Context, id generic.TransactionTypeID) (generic.TransactionType, error) {
	var t generic.TransactionType
	var kind string
	err := s.q.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, kind FROM transaction_types WHERE id = ?`), int64(id),
	).Scan(&t.ID, &t.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.TransactionType{}, &generic.NotFoundError{Kind: "transaction_type", ID: int64(id)}
	}
	if err != nil {
		return generic.TransactionType{}, s.fail("get transaction type", err)
	}
	t.Kind = generic.TransactionKind(kind)
	return t, nil
}

func (s *Store) ListTransactionTypes(ctx context.Context) ([]generic.TransactionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, `SELECT id, name, kind FROM transaction_types ORDER BY id`)
	if err != nil {
		return nil, s.fail("list transaction types", err)
	}
	defer rows.Close()

	out := []generic.TransactionType{}
	for rows.Next() {
		var t generic.TransactionType
		var kind string
		if err := rows.Scan(&t.ID, &t.Name, &kind); err != nil {
			return nil, s.fail("scan transaction type", err)
		}
		t.Kind = generic.TransactionKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// SHIFTS (generic.ShiftStore)
// =============================================================================

const shiftColumns = `id, name, scheduled_start, scheduled_end, actual_start, actual_end`

func (s *Store) CreateShift(ctx context.Context, sh generic.Shift) (generic.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(ctx, "create shift",
		`INSERT INTO shifts (name, scheduled_start, scheduled_end, actual_start, actual_end) VALUES (?, ?, ?, ?, ?)`,
		sh.Name, int(sh.ScheduledStart), int(sh.ScheduledEnd), nullTime(sh.ActualStart), nullTime(sh.ActualEnd))
	if err != nil {
		return generic.Shift{}, err
	}
	sh.ID = generic.ShiftID(id)
	return sh, nil
}

func (s *Store) GetShift(ctx context.Context, id generic.ShiftID) (generic.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, s.rebind(`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`), int64(id))
	if err != nil {
		return generic.Shift{}, s.fail("get shift", err)
	}
	shifts, err := s.scanShifts(rows)
	if err != nil {
		return generic.Shift{}, err
	}
	if len(shifts) == 0 {
		return generic.Shift{}, &generic.NotFoundError{Kind: "shift", ID: int64(id)}
	}
	return shifts[0], nil
}

func (s *Store) ListShifts(ctx context.Context) ([]generic.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.q.QueryContext(ctx, `SELECT `+shiftColumns+` FROM shifts ORDER BY id`)
	if err != nil {
		return nil, s.fail("list shifts", err)
	}
	return s.scanShifts(rows)
}

func (s *Store) UpdateShift(ctx context.Context, sh generic.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, "update shift",
		`UPDATE shifts SET name = ?, scheduled_start = ?, scheduled_end = ?, actual_start = ?, actual_end = ? WHERE id = ?`,
		sh.Name, int(sh.ScheduledStart), int(sh.ScheduledEnd), nullTime(sh.ActualStart), nullTime(sh.ActualEnd), int64(sh.ID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "shift", ID: int64(sh.ID)}
	}
	return nil
}

func (s *Store) scanShifts(rows *sql.Rows) ([]generic.Shift, error) {
	defer rows.Close()

	out := []generic.Shift{}
	for rows.Next() {
		var (
			sh          generic.Shift
			start, end  int
			actualStart sql.NullString
			actualEnd   sql.NullString
		)
		if err := rows.Scan(&sh.ID, &sh.Name, &start, &end, &actualStart, &actualEnd); err != nil {
			return nil, s.fail("scan shift", err)
		}
		sh.ScheduledStart = generic.ClockTime(start)
		sh.ScheduledEnd = generic.ClockTime(end)
		var cols columns
		sh.ActualStart = cols.timePtr("actual_start", actualStart)
		sh.ActualEnd = cols.timePtr("actual_end", actualEnd)
		if cols.err != nil {
			return nil, s.fail("scan shift", cols.err)
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("scan shifts", err)
	}
	return out, nil
}
