// Package store provides the in-memory Store implementation.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store with maps guarded by a RWMutex.
// Transactions are simulated with a snapshot + rollback on error.
type Memory struct {
	mu    rwLocker
	state *memoryState
}

type memoryState struct {
	seq map[string]int64

	agentTypes   map[generic.AgentTypeID]generic.AgentType
	agents       map[generic.AgentID]generic.Agent
	txTypes      map[generic.TransactionTypeID]generic.TransactionType
	transactions map[generic.TransactionID]generic.Transaction
	rules        map[generic.AgentTypeID]map[generic.TransactionTypeID]generic.FormulaRule
	closings     map[generic.ClosingID]generic.Closing
	adjustments  map[generic.ClosingID][]generic.Adjustment
	shifts       map[generic.ShiftID]generic.Shift
}

type rwLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// noLock is used by transactional views, which run under the parent's lock.
type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}

func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		seq:          make(map[string]int64),
		agentTypes:   make(map[generic.AgentTypeID]generic.AgentType),
		agents:       make(map[generic.AgentID]generic.Agent),
		txTypes:      make(map[generic.TransactionTypeID]generic.TransactionType),
		transactions: make(map[generic.TransactionID]generic.Transaction),
		rules:        make(map[generic.AgentTypeID]map[generic.TransactionTypeID]generic.FormulaRule),
		closings:     make(map[generic.ClosingID]generic.Closing),
		adjustments:  make(map[generic.ClosingID][]generic.Adjustment),
		shifts:       make(map[generic.ShiftID]generic.Shift),
	}
}

func (s *memoryState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// =============================================================================
// AGENTS
// =============================================================================

func (m *Memory) CreateAgentType(_ context.Context, t generic.AgentType) (generic.AgentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.agentTypes {
		if existing.Name == t.Name {
			return generic.AgentType{}, &generic.ConflictError{Reason: "agent type " + t.Name + " already exists"}
		}
	}
	t.ID = generic.AgentTypeID(m.state.next("agent_types"))
	m.state.agentTypes[t.ID] = t
	return t, nil
}

func (m *Memory) GetAgentType(_ context.Context, id generic.AgentTypeID) (generic.AgentType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.state.agentTypes[id]
	if !ok {
		return generic.AgentType{}, &generic.NotFoundError{Kind: "agent_type", ID: int64(id)}
	}
	return t, nil
}

func (m *Memory) ListAgentTypes(_ context.Context) ([]generic.AgentType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.AgentType, 0, len(m.state.agentTypes))
	for _, t := range m.state.agentTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateAgent(_ context.Context, a generic.Agent) (generic.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.agentTypes[a.TypeID]; !ok {
		return generic.Agent{}, &generic.NotFoundError{Kind: "agent_type", ID: int64(a.TypeID)}
	}
	a.ID = generic.AgentID(m.state.next("agents"))
	m.state.agents[a.ID] = a
	return a, nil
}

func (m *Memory) GetAgent(_ context.Context, id generic.AgentID) (generic.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.state.agents[id]
	if !ok {
		return generic.Agent{}, &generic.NotFoundError{Kind: "agent", ID: int64(id)}
	}
	return a, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]generic.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Agent, 0, len(m.state.agents))
	for _, a := range m.state.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) CreateTransactionType(_ context.Context, t generic.TransactionType) (generic.TransactionType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.txTypes {
		if existing.Name == t.Name {
			return generic.TransactionType{}, &generic.ConflictError{Reason: "transaction type " + t.Name + " already exists"}
		}
	}
	t.ID = generic.TransactionTypeID(m.state.next("transaction_types"))
	m.state.txTypes[t.ID] = t
	return t, nil
}

func (m *Memory) GetTransactionType(_ context.Context, id generic.TransactionTypeID) (generic.TransactionType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.state.txTypes[id]
	if !ok {
		return generic.TransactionType{}, &generic.NotFoundError{Kind: "transaction_type", ID: int64(id)}
	}
	return t, nil
}

func (m *Memory) ListTransactionTypes(_ context.Context) ([]generic.TransactionType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.TransactionType, 0, len(m.state.txTypes))
	for _, t := range m.state.txTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendTransaction(_ context.Context, tx generic.Transaction) (generic.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.agents[tx.AgentID]; !ok {
		return generic.Transaction{}, &generic.NotFoundError{Kind: "agent", ID: int64(tx.AgentID)}
	}
	if _, ok := m.state.txTypes[tx.TypeID]; !ok {
		return generic.Transaction{}, &generic.NotFoundError{Kind: "transaction_type", ID: int64(tx.TypeID)}
	}
	tx.ID = generic.TransactionID(m.state.next("transactions"))
	m.state.transactions[tx.ID] = tx
	return tx, nil
}

func (m *Memory) GetTransaction(_ context.Context, id generic.TransactionID) (generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.state.transactions[id]
	if !ok {
		return generic.Transaction{}, &generic.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return tx, nil
}

func (m *Memory) DeactivateTransaction(_ context.Context, id generic.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.state.transactions[id]
	if !ok {
		return &generic.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	tx.Active = false
	m.state.transactions[id] = tx
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.selectTransactions(filter.Matches), nil
}

func (m *Memory) PeriodTransactions(_ context.Context, q generic.PeriodQuery) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.selectTransactions(q.Matches), nil
}

func (m *Memory) LatestInitialBalance(_ context.Context, agentID generic.AgentID, before time.Time) (*generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := m.state.selectTransactions(func(tx generic.Transaction) bool {
		return tx.Active &&
			tx.AgentID == agentID &&
			tx.OccurredAt.Before(before) &&
			m.state.txTypes[tx.TypeID].Kind == generic.KindInitialBalance
	})
	if len(matches) == 0 {
		return nil, nil
	}
	latest := matches[len(matches)-1]
	return &latest, nil
}

// selectTransactions returns matches ordered by OccurredAt, ID.
func (s *memoryState) selectTransactions(match func(generic.Transaction) bool) []generic.Transaction {
	var out []generic.Transaction
	for _, tx := range s.transactions {
		if match(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// FORMULA RULES
// =============================================================================

func (m *Memory) ListRules(_ context.Context, scope generic.AgentTypeID) ([]generic.FormulaRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.FormulaRule, 0, len(m.state.rules[scope]))
	for _, r := range m.state.rules[scope] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

func (m *Memory) ReplaceRules(_ context.Context, scope generic.AgentTypeID, rules []generic.FormulaRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := make(map[generic.TransactionTypeID]generic.FormulaRule, len(rules))
	for _, r := range rules {
		if _, ok := m.state.txTypes[r.TypeID]; !ok {
			return &generic.NotFoundError{Kind: "transaction_type", ID: int64(r.TypeID)}
		}
		if _, dup := replaced[r.TypeID]; dup {
			return &generic.ConflictError{Reason: "duplicate rule for transaction type"}
		}
		r.Scope = scope
		replaced[r.TypeID] = r
	}
	m.state.rules[scope] = replaced
	return nil
}

// =============================================================================
// CLOSINGS
// =============================================================================

func (m *Memory) CreateClosing(_ context.Context, c generic.Closing) (generic.Closing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.agents[c.AgentID]; !ok {
		return generic.Closing{}, &generic.NotFoundError{Kind: "agent", ID: int64(c.AgentID)}
	}
	if err := m.state.checkClosingUnique(c); err != nil {
		return generic.Closing{}, err
	}
	c.ID = generic.ClosingID(m.state.next("closings"))
	m.state.closings[c.ID] = c
	return c, nil
}

// checkClosingUnique mirrors the (agent, date, shift) unique index.
func (s *memoryState) checkClosingUnique(c generic.Closing) error {
	for _, existing := range s.closings {
		if existing.ID != c.ID &&
			existing.AgentID == c.AgentID &&
			existing.Date.Equal(c.Date) &&
			existing.ShiftID == c.ShiftID {
			return &generic.ConflictError{Reason: "a closing already exists for this agent, date and shift"}
		}
	}
	return nil
}

func (m *Memory) GetClosing(_ context.Context, id generic.ClosingID) (generic.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.state.closings[id]
	if !ok {
		return generic.Closing{}, &generic.NotFoundError{Kind: "closing", ID: int64(id)}
	}
	return c, nil
}

func (m *Memory) UpdateClosing(_ context.Context, c generic.Closing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.closings[c.ID]; !ok {
		return &generic.NotFoundError{Kind: "closing", ID: int64(c.ID)}
	}
	if err := m.state.checkClosingUnique(c); err != nil {
		return err
	}
	m.state.closings[c.ID] = c
	return nil
}

func (m *Memory) DeleteClosing(_ context.Context, id generic.ClosingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.closings[id]; !ok {
		return &generic.NotFoundError{Kind: "closing", ID: int64(id)}
	}
	delete(m.state.closings, id)
	delete(m.state.adjustments, id)
	return nil
}

func (m *Memory) ListClosings(_ context.Context, filter generic.ClosingFilter) ([]generic.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Closing
	for _, c := range m.state.closings {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LatestClosing(_ context.Context, agentID generic.AgentID, date generic.Date, before generic.ClosingID) (*generic.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *generic.Closing
	for _, c := range m.state.closings {
		if c.AgentID != agentID || !c.Date.Equal(date) {
			continue
		}
		if before != 0 && c.ID >= before {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			found := c
			latest = &found
		}
	}
	return latest, nil
}

func (m *Memory) AppendAdjustment(_ context.Context, a generic.Adjustment) (generic.Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.closings[a.ClosingID]; !ok {
		return generic.Adjustment{}, &generic.NotFoundError{Kind: "closing", ID: int64(a.ClosingID)}
	}
	a.ID = generic.AdjustmentID(m.state.next("adjustments"))
	m.state.adjustments[a.ClosingID] = append(m.state.adjustments[a.ClosingID], a)
	return a, nil
}

func (m *Memory) ListAdjustments(_ context.Context, closingID generic.ClosingID) ([]generic.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Adjustment, len(m.state.adjustments[closingID]))
	copy(out, m.state.adjustments[closingID])
	return out, nil
}

// =============================================================================
// SHIFTS
// =============================================================================

func (m *Memory) CreateShift(_ context.Context, s generic.Shift) (generic.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = generic.ShiftID(m.state.next("shifts"))
	m.state.shifts[s.ID] = s
	return s, nil
}

func (m *Memory) GetShift(_ context.Context, id generic.ShiftID) (generic.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.state.shifts[id]
	if !ok {
		return generic.Shift{}, &generic.NotFoundError{Kind: "shift", ID: int64(id)}
	}
	return s, nil
}

func (m *Memory) ListShifts(_ context.Context) ([]generic.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Shift, 0, len(m.state.shifts))
	for _, s := range m.state.shifts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateShift(_ context.Context, s generic.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.shifts[s.ID]; !ok {
		return &generic.NotFoundError{Kind: "shift", ID: int64(s.ID)}
	}
	m.state.shifts[s.ID] = s
	return nil
}

// =============================================================================
// TRANSACTIONS AND RESET
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The whole transaction runs under the write lock.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	if _, nested := m.mu.(noLock); nested {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	view := &Memory{mu: noLock{}, state: m.state}
	if err := fn(view); err != nil {
		*m.state = *snapshot
		return err
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	*m.state = *newMemoryState()
	return nil
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.agentTypes {
		c.agentTypes[k] = v
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.txTypes {
		c.txTypes[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for scope, rules := range s.rules {
		copied := make(map[generic.TransactionTypeID]generic.FormulaRule, len(rules))
		for k, v := range rules {
			copied[k] = v
		}
		c.rules[scope] = copied
	}
	for k, v := range s.closings {
		c.closings[k] = v
	}
	for k, v := range s.adjustments {
		c.adjustments[k] = append([]generic.Adjustment{}, v...)
	}
	for k, v := range s.shifts {
		c.shifts[k] = v
	}
	return c
}
