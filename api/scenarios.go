/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the store with small, realistic data sets that exercise the
  aggregation rules and the carry-forward strategies.

AVAILABLE SCENARIOS:
  basic-agent:  One reseller, sales +1 and withdrawals -1
  shared-float: A float type summed across two agents
  cash-pool:    Counted-balance carry-forward with a prior closing today

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create agent types, transaction types and formula rules
 3. Create agents and post transactions dated this month
 4. Optionally create closings and shifts

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "cash-pool"}

NOTE:
  Loading a scenario resets the store. Only use in development/demo
  environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-agent",
		Name:        "Basic Agent",
		Description: "Sales count +1, withdrawals count -1, no carried balance",
	},
	{
		ID:          "shared-float",
		Name:        "Shared Float",
		Description: "A float transaction type summed across every agent",
	},
	{
		ID:          "cash-pool",
		Name:        "Cash Pool",
		Description: "Cash pool agent carrying the counted balance between shifts",
	},
}

type scenarioLoader func(ctx context.Context, e *reconcile.Engine, today generic.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"basic-agent":  loadBasicAgentScenario,
	"shared-float": loadSharedFloatScenario,
	"cash-pool":    loadCashPoolScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeEngineError(w, r, "Failed to reset store", err)
		return
	}
	if err := load(ctx, h.Engine, generic.DateOf(h.Now())); err != nil {
		h.writeEngineError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
	})
}

// ResetStore clears all data.
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeEngineError(w, r, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	resetter, ok := h.Engine.Store.(generic.Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seed is the catalog every scenario starts from.
type seed struct {
	engine   *reconcile.Engine
	today    generic.Date
	standard generic.AgentType
	sales    generic.TransactionType
	withdraw generic.TransactionType
	initial  generic.TransactionType
}

func newSeed(ctx context.Context, e *reconcile.Engine, today generic.Date) (*seed, error) {
	s := &seed{engine: e, today: today}
	var err error
	if s.standard, err = e.Catalog.CreateAgentType(ctx, generic.AgentType{
		Name: "Reseller", CarryForward: generic.CarryStandardResult,
	}); err != nil {
		return nil, err
	}
	if s.sales, err = e.Catalog.CreateTransactionType(ctx, generic.TransactionType{
		Name: "Sales", Kind: generic.KindRegular,
	}); err != nil {
		return nil, err
	}
	if s.withdraw, err = e.Catalog.CreateTransactionType(ctx, generic.TransactionType{
		Name: "Withdrawal", Kind: generic.KindRegular,
	}); err != nil {
		return nil, err
	}
	if s.initial, err = e.Catalog.CreateTransactionType(ctx, generic.TransactionType{
		Name: "Initial balance", Kind: generic.KindInitialBalance,
	}); err != nil {
		return nil, err
	}
	_, err = e.Rules.BulkUpdate(ctx, generic.GlobalScope, []generic.FormulaRule{
		{TypeID: s.sales.ID, Include: true, Multiplier: generic.Plus},
		{TypeID: s.withdraw.ID, Include: true, Multiplier: generic.Minus},
	})
	return s, err
}

func (s *seed) agent(ctx context.Context, name string, typeID generic.AgentTypeID) (generic.Agent, error) {
	return s.engine.Catalog.CreateAgent(ctx, generic.Agent{Name: name, TypeID: typeID, Active: true})
}

// post records value on the agent at hour o'clock today.
func (s *seed) post(ctx context.Context, agent generic.AgentID, typeID generic.TransactionTypeID, value string, hour int) error {
	_, err := s.engine.Ledger.Post(ctx, generic.PostTransaction{
		AgentID:    agent,
		TypeID:     typeID,
		Value:      generic.MustAmount(value),
		OccurredAt: s.today.Start().Add(time.Duration(hour) * time.Hour),
	})
	return err
}

func loadBasicAgentScenario(ctx context.Context, e *reconcile.Engine, today generic.Date) error {
	s, err := newSeed(ctx, e, today)
	if err != nil {
		return err
	}
	agent, err := s.agent(ctx, "Kiosk Centro", s.standard.ID)
	if err != nil {
		return err
	}
	if err := s.post(ctx, agent.ID, s.sales.ID, "300.00", 9); err != nil {
		return err
	}
	if err := s.post(ctx, agent.ID, s.sales.ID, "200.00", 11); err != nil {
		return err
	}
	return s.post(ctx, agent.ID, s.withdraw.ID, "120.00", 12)
}

func loadSharedFloatScenario(ctx context.Context, e *reconcile.Engine, today generic.Date) error {
	s, err := newSeed(ctx, e, today)
	if err != nil {
		return err
	}
	shared, err := e.Catalog.CreateTransactionType(ctx, generic.TransactionType{Name: "Shared float", Kind: generic.KindRegular})
	if err != nil {
		return err
	}
	if _, err := e.Rules.BulkUpdate(ctx, generic.GlobalScope, []generic.FormulaRule{
		{TypeID: s.sales.ID, Include: true, Multiplier: generic.Plus},
		{TypeID: s.withdraw.ID, Include: true, Multiplier: generic.Minus},
		{TypeID: shared.ID, Include: true, Multiplier: generic.Plus, SumAcrossAgents: true},
	}); err != nil {
		return err
	}

	north, err := s.agent(ctx, "Kiosk Norte", s.standard.ID)
	if err != nil {
		return err
	}
	south, err := s.agent(ctx, "Kiosk Sur", s.standard.ID)
	if err != nil {
		return err
	}
	for _, p := range []struct {
		agent generic.AgentID
		typ   generic.TransactionTypeID
		value string
		hour  int
	}{
		{north.ID, s.sales.ID, "250.00", 9},
		{south.ID, s.sales.ID, "180.00", 10},
		{north.ID, shared.ID, "1000.00", 8},
		{south.ID, shared.ID, "500.00", 8},
		{south.ID, s.withdraw.ID, "40.00", 13},
	} {
		if err := s.post(ctx, p.agent, p.typ, p.value, p.hour); err != nil {
			return err
		}
	}
	return nil
}

func loadCashPoolScenario(ctx context.Context, e *reconcile.Engine, today generic.Date) error {
	s, err := newSeed(ctx, e, today)
	if err != nil {
		return err
	}
	poolType, err := e.Catalog.CreateAgentType(ctx, generic.AgentType{
		Name: "Cash pool", CarryForward: generic.CarryCountedBalance,
	})
	if err != nil {
		return err
	}
	pool, err := s.agent(ctx, "Main till", poolType.ID)
	if err != nil {
		return err
	}

	morning, err := e.Shifts.Create(ctx, generic.Shift{Name: "Morning", ScheduledStart: 6 * 60, ScheduledEnd: 14 * 60})
	if err != nil {
		return err
	}
	if _, err := e.Shifts.Create(ctx, generic.Shift{Name: "Afternoon", ScheduledStart: 14 * 60, ScheduledEnd: 22 * 60}); err != nil {
		return err
	}

	if err := s.post(ctx, pool.ID, s.initial.ID, "1000.00", 0); err != nil {
		return err
	}
	if err := s.post(ctx, pool.ID, s.sales.ID, "400.00", 10); err != nil {
		return err
	}
	if err := s.post(ctx, pool.ID, s.withdraw.ID, "50.00", 12); err != nil {
		return err
	}

	// Counted 5.00 short; the next shift opens from the counted cash.
	_, err = e.Closings.Create(ctx, reconcile.CreateClosingInput{
		AgentID:      pool.ID,
		Date:         today,
		ShiftID:      morning.ID,
		FinalCounted: generic.MustAmount("345.00"),
		Observations: "Morning count",
		CreatedBy:    "demo",
	})
	return err
}
