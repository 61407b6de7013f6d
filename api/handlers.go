/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Thin controller layer over reconcile.Engine. Handles HTTP request and
  response, JSON serialization and input parsing, then delegates.

ENDPOINTS:
  Catalog:
    GET|POST /api/agent-types
    GET|POST /api/agents, GET /api/agents/{id}
    GET|POST /api/transaction-types

  Engine:
    GET /api/agents/{id}/period-result?from=&to=
    GET /api/agents/{id}/opening-balance?date=

  Transactions:
    GET /api/transactions?agent_id=&from=&to=
    POST /api/transactions            (guarded)
    DELETE /api/transactions/{id}     soft delete

  Formula rules:
    GET /api/formula-rules/{scope}
    PUT /api/formula-rules/{scope}    bulk replace (guarded)

  Closings, adjustments, shifts: see closings.go

GUARDED SUBMISSIONS:
  Mutating calls that a double click would repeat run through submit(),
  which fingerprints the request and rejects an identical one already in
  flight with 409 duplicate_in_flight.

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Referenced record not found
  - 409: Conflict, or duplicate submission in flight
  - 500: Store failures (logged, no driver detail returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/guard"
	"github.com/warp/reconciliation-engine/reconcile"
	"github.com/warp/reconciliation-engine/telemetry"
	"go.uber.org/zap"
)

// Guarded operation names, used in fingerprints and metrics.
const (
	OpCreateClosing    = "create_closing"
	OpRecordAdjustment = "record_adjustment"
	OpPostTransaction  = "post_transaction"
	OpReplaceRules     = "replace_rules"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *reconcile.Engine
	Guard  guard.Guard

	// Metrics is optional.
	Metrics *telemetry.Metrics

	// Bucket is the fingerprint time bucket.
	Bucket time.Duration
	Now    func() time.Time

	logger   *zap.Logger
	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. A nil logger logs nothing.
func NewHandler(engine *reconcile.Engine, g guard.Guard, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:   engine,
		Guard:    g,
		Bucket:   10 * time.Second,
		Now:      time.Now,
		logger:   logger.Named("api"),
		validate: validate,
	}
}

// submit runs fn under the duplicate-submission guard. fields are the
// primary business fields of the request.
func submit[T any](ctx context.Context, h *Handler, op string, fields []any, fn func(context.Context) (T, error)) (T, error) {
	key := guard.Fingerprint(op, h.Bucket, h.Now(), fields...)
	result, err := guard.Submit(ctx, h.Guard, key, fn)

	outcome := telemetry.OutcomeAdmitted
	switch {
	case generic.IsDuplicateInFlight(err):
		outcome = telemetry.OutcomeDuplicate
		h.logger.Info("duplicate submission rejected",
			zap.String("operation", op),
			zap.String("fingerprint", key))
	case err != nil:
		outcome = telemetry.OutcomeFailed
	}
	if h.Metrics != nil {
		h.Metrics.GuardSubmission(op, outcome)
	}
	return result, err
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListAgentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Engine.Catalog.ListAgentTypes(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Failed to list agent types", err)
		return
	}
	dtos := make([]AgentTypeDTO, len(types))
	for i, t := range types {
		dtos[i] = toAgentTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAgentType(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentTypeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	created, err := h.Engine.Catalog.CreateAgentType(r.Context(), generic.AgentType{
		Name:         req.Name,
		CarryForward: generic.CarryForwardStrategy(req.CarryForward),
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to create agent type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentTypeDTO(created))
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Engine.Catalog.ListAgents(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Failed to list agents", err)
		return
	}
	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	created, err := h.Engine.Catalog.CreateAgent(r.Context(), generic.Agent{
		Name:   req.Name,
		TypeID: generic.AgentTypeID(req.TypeID),
		Active: true,
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to create agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(created))
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid agent ID", err)
		return
	}
	agent, err := h.Engine.Catalog.GetAgent(r.Context(), generic.AgentID(id))
	if err != nil {
		h.writeEngineError(w, r, "Failed to get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(agent))
}

func (h *Handler) ListTransactionTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Engine.Catalog.ListTransactionTypes(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Failed to list transaction types", err)
		return
	}
	dtos := make([]TransactionTypeDTO, len(types))
	for i, t := range types {
		dtos[i] = toTransactionTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTransactionType(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionTypeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	created, err := h.Engine.Catalog.CreateTransactionType(r.Context(), generic.TransactionType{
		Name: req.Name,
		Kind: generic.TransactionKind(req.Kind),
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to create transaction type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionTypeDTO(created))
}

// =============================================================================
// AGGREGATION AND CARRY-FORWARD
// =============================================================================

// GetPeriodResult computes the agent's signed total. from defaults to the
// first of to's month, to defaults to today.
func (h *Handler) GetPeriodResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid agent ID", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.writeEngineError(w, r, "Invalid end date", err)
		return
	}
	if to.IsZero() {
		to = generic.DateOf(h.Now())
	}
	from, err := queryDate(r, "from")
	if err != nil {
		h.writeEngineError(w, r, "Invalid start date", err)
		return
	}
	if from.IsZero() {
		from = to.StartOfMonth()
	}

	result, err := h.Engine.Aggregator.ComputePeriodResult(r.Context(), generic.AgentID(id), from, to)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute period result", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodResultDTO(result))
}

// GetOpeningBalance previews the opening balance a closing on date would get.
func (h *Handler) GetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid agent ID", err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		h.writeEngineError(w, r, "Invalid date", err)
		return
	}
	if date.IsZero() {
		date = generic.DateOf(h.Now())
	}

	opening, err := h.Engine.Resolver.ResolveOpeningBalance(r.Context(), generic.AgentID(id), date)
	if err != nil {
		h.writeEngineError(w, r, "Failed to resolve opening balance", err)
		return
	}
	writeJSON(w, http.StatusOK, OpeningBalanceDTO{
		AgentID:       id,
		Date:          date,
		Value:         opening.Value,
		Source:        string(opening.Source),
		ClosingID:     int64(opening.ClosingID),
		TransactionID: int64(opening.TransactionID),
	})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter generic.TransactionFilter
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeEngineError(w, r, "Invalid agent ID",
				&generic.ValidationError{Field: "agent_id", Message: "must be a positive integer"})
			return
		}
		filter.AgentID = generic.AgentID(id)
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.writeEngineError(w, r, "Invalid start date", err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.writeEngineError(w, r, "Invalid end date", err)
		return
	}
	filter.IncludeInactive = r.URL.Query().Get("include_inactive") == "true"

	txs, err := h.Engine.Ledger.Transactions(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req PostTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	value, err := generic.ParseAmount("value", req.Value)
	if err != nil {
		h.writeEngineError(w, r, "Invalid value", err)
		return
	}
	in := generic.PostTransaction{
		AgentID: generic.AgentID(req.AgentID),
		TypeID:  generic.TransactionTypeID(req.TypeID),
		Value:   value,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	fields := []any{in.AgentID, in.TypeID, value.String(), in.OccurredAt.UnixNano()}
	tx, err := submit(r.Context(), h, OpPostTransaction, fields, func(ctx context.Context) (generic.Transaction, error) {
		return h.Engine.Ledger.Post(ctx, in)
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to post transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// DeactivateTransaction soft-deletes a transaction. Records are never
// physically removed.
func (h *Handler) DeactivateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid transaction ID", err)
		return
	}
	tx, err := h.Engine.Ledger.Deactivate(r.Context(), generic.TransactionID(id))
	if err != nil {
		h.writeEngineError(w, r, "Failed to deactivate transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// FORMULA RULE HANDLERS
// =============================================================================

func (h *Handler) ListFormulaRules(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		h.writeEngineError(w, r, "Invalid scope", err)
		return
	}
	rules, err := h.Engine.Rules.List(r.Context(), scope)
	if err != nil {
		h.writeEngineError(w, r, "Failed to list formula rules", err)
		return
	}
	writeJSON(w, http.StatusOK, toFormulaRuleDTOs(rules))
}

// ReplaceFormulaRules replaces every rule of the scope, all or nothing.
func (h *Handler) ReplaceFormulaRules(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		h.writeEngineError(w, r, "Invalid scope", err)
		return
	}
	var req BulkUpdateRulesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}

	rules := make([]generic.FormulaRule, len(req.Rules))
	fields := []any{scope}
	for i, item := range req.Rules {
		rules[i] = generic.FormulaRule{
			Scope:           scope,
			TypeID:          generic.TransactionTypeID(item.TypeID),
			Include:         item.Include,
			Multiplier:      generic.Multiplier(item.Multiplier),
			SumAcrossAgents: item.SumAcrossAgents,
		}
		fields = append(fields, item.TypeID, item.Include, item.Multiplier, item.SumAcrossAgents)
	}

	updated, err := submit(r.Context(), h, OpReplaceRules, fields, func(ctx context.Context) ([]generic.FormulaRule, error) {
		return h.Engine.Rules.BulkUpdate(ctx, scope, rules)
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to update formula rules", err)
		return
	}
	writeJSON(w, http.StatusOK, toFormulaRuleDTOs(updated))
}

func toFormulaRuleDTOs(rules []generic.FormulaRule) []FormulaRuleDTO {
	dtos := make([]FormulaRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toFormulaRuleDTO(rule)
	}
	return dtos
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &generic.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// pathScope parses {scope}: "global" or 0 for global rules, else an agent
// type ID.
func pathScope(r *http.Request) (generic.AgentTypeID, error) {
	raw := chi.URLParam(r, "scope")
	if raw == "global" {
		return generic.GlobalScope, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, &generic.ValidationError{Field: "scope", Message: "must be 'global' or an agent type id"}
	}
	return generic.AgentTypeID(id), nil
}

// queryDate parses an optional YYYY-MM-DD query parameter. Absent means the
// zero Date.
func queryDate(r *http.Request, name string) (generic.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return generic.Date{}, nil
	}
	return generic.ParseDate(name, raw)
}
