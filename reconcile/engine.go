/*
Package reconcile implements the shift-closing reconciliation engine.

PURPOSE:
  Computes an agent's period result from configurable per-type formula
  rules, carries balances forward between successive closings of the same
  agent and day, and manages the closing lifecycle with its adjustment
  audit trail.

COMPONENTS:
  Catalog:    Agent types, agents and transaction types
  Aggregator: computePeriodResult
  Resolver:   resolveOpeningBalance
  Rules:      Formula rule administration (bulk update per scope)
  Closings:   Create/update/finalize/adjust closings
  Shifts:     Shift clock state and the current operating period

DATA FLOW (create closing):
  Guard admits the submission (api layer)
    -> Resolver finds the opening balance
    -> Aggregator sums the month to date under the active rules
    -> Closings persists computed result and variance
  All reads and the insert run inside one store transaction.

USAGE:
  engine := reconcile.New(store, reconcile.Options{Logger: logger})
  closing, err := engine.Closings.Create(ctx, reconcile.CreateClosingInput{...})

SEE ALSO:
  - generic/: Domain types and store interfaces
  - guard/: Duplicate-submission guard wrapped around mutating calls
*/
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/reconciliation-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// DUPLICATE CLOSING POLICY
// =============================================================================

// DuplicatePolicy decides whether an agent may close the same day twice.
type DuplicatePolicy string

const (
	// PerShift allows one closing per (agent, date, shift).
	PerShift DuplicatePolicy = "per_shift"

	// PerDay allows one closing per (agent, date) regardless of shift.
	PerDay DuplicatePolicy = "per_day"
)

// ParseDuplicatePolicy parses a configured policy name. Empty means PerShift.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.TrimSpace(s)) {
	case "", PerShift:
		return PerShift, nil
	case PerDay:
		return PerDay, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (use per_shift or per_day)", s)
	}
}

// =============================================================================
// OBSERVER - Metrics hook
// =============================================================================

// Observer receives engine measurements. telemetry.Metrics implements it.
// The variance passed with created and updated events is the closing's
// variance; other events pass zero.
type Observer interface {
	AggregationObserved(d time.Duration)
	ClosingEvent(event string, variance generic.Amount)
}

type nopObserver struct{}

func (nopObserver) AggregationObserved(time.Duration)   {}
func (nopObserver) ClosingEvent(string, generic.Amount) {}

// =============================================================================
// ENGINE
// =============================================================================

type Options struct {
	DuplicatePolicy DuplicatePolicy
	Logger          *zap.Logger
	Observer        Observer
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DuplicatePolicy == "" {
		o.DuplicatePolicy = PerShift
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine bundles every component over one store.
type Engine struct {
	Store      generic.Store
	Catalog    *Catalog
	Ledger     *generic.Ledger
	Aggregator *Aggregator
	Resolver   *Resolver
	Rules      *Rules
	Closings   *Closings
	Shifts     *Shifts
}

func New(store generic.Store, opts Options) *Engine {
	opts = opts.withDefaults()

	ledger := generic.NewLedger(store)
	ledger.Now = opts.Now

	aggregator := &Aggregator{store: store, observer: opts.Observer}
	resolver := &Resolver{store: store}

	return &Engine{
		Store:      store,
		Catalog:    &Catalog{store: store},
		Ledger:     ledger,
		Aggregator: aggregator,
		Resolver:   resolver,
		Rules:      &Rules{store: store, logger: opts.Logger.Named("reconcile.rules")},
		Closings: &Closings{
			store:      store,
			aggregator: aggregator,
			dupPolicy:  opts.DuplicatePolicy,
			now:        opts.Now,
			observer:   opts.Observer,
			logger:     opts.Logger.Named("reconcile.closings"),
		},
		Shifts: &Shifts{store: store, now: opts.Now},
	}
}

// agentContext is an agent with its type, loaded once per operation so the
// carry-forward strategy and rule scope are resolved in one place.
type agentContext struct {
	agent     generic.Agent
	agentType generic.AgentType
}

func loadAgent(ctx context.Context, s generic.AgentStore, id generic.AgentID) (agentContext, error) {
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return agentContext{}, err
	}
	agentType, err := s.GetAgentType(ctx, agent.TypeID)
	if err != nil {
		return agentContext{}, err
	}
	return agentContext{agent: agent, agentType: agentType}, nil
}
