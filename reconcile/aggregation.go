/*
aggregation.go - Period result computation

PURPOSE:
  Sums an agent's transactions over an inclusive date window under the
  effective formula rules of the agent's type.

ALGORITHM:
  1. Resolve the rule set (type-scoped rules override global ones)
  2. Read, in one query, the active records in [start, end+1d) that belong
     to the agent or whose type is summed across agents
  3. For each record add value * multiplier when its type is included

  A type with no rule is excluded, not an error. The sum is linear, so
  record order does not matter.

SEE ALSO:
  - generic/rule.go: RuleSet and Contribution
*/
package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/warp/reconciliation-engine/generic"
)

// TypeTotal is the contribution of one transaction type.
type TypeTotal struct {
	TypeID       generic.TransactionTypeID
	Count        int
	Sum          generic.Amount // raw values
	Contribution generic.Amount // Sum * multiplier
}

// PeriodResult is the signed total of a period with its per-type breakdown.
type PeriodResult struct {
	AgentID generic.AgentID
	Period  generic.Period
	Total   generic.Amount
	ByType  []TypeTotal
}

type Aggregator struct {
	store    generic.Store
	observer Observer
}

// ComputePeriodResult returns the agent's signed total over [start, end].
func (a *Aggregator) ComputePeriodResult(ctx context.Context, agentID generic.AgentID, start, end generic.Date) (PeriodResult, error) {
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return PeriodResult{}, err
	}
	ac, err := loadAgent(ctx, a.store, agentID)
	if err != nil {
		return PeriodResult{}, generic.WrapOp("compute period result", agentID, end, err)
	}
	result, err := a.compute(ctx, a.store, ac, period)
	if err != nil {
		return PeriodResult{}, generic.WrapOp("compute period result", agentID, end, err)
	}
	return result, nil
}

// compute runs against s so callers inside a store transaction see their
// own consistent view.
func (a *Aggregator) compute(ctx context.Context, s generic.Store, ac agentContext, period generic.Period) (PeriodResult, error) {
	started := time.Now()
	defer func() { a.observer.AggregationObserved(time.Since(started)) }()

	rules, err := effectiveRules(ctx, s, ac.agent.TypeID)
	if err != nil {
		return PeriodResult{}, err
	}

	from, to := period.Bounds()
	txs, err := s.PeriodTransactions(ctx, generic.PeriodQuery{
		AgentID:     ac.agent.ID,
		SharedTypes: rules.SharedTypes(),
		From:        from,
		To:          to,
	})
	if err != nil {
		return PeriodResult{}, err
	}

	return evaluate(ac.agent.ID, period, rules, txs), nil
}

// evaluate applies the rule set to the records.
func evaluate(agentID generic.AgentID, period generic.Period, rules generic.RuleSet, txs []generic.Transaction) PeriodResult {
	result := PeriodResult{AgentID: agentID, Period: period, Total: generic.ZeroAmount()}
	totals := make(map[generic.TransactionTypeID]*TypeTotal)

	for _, tx := range txs {
		contribution, ok := rules.Contribution(agentID, tx)
		if !ok {
			continue
		}
		t, exists := totals[tx.TypeID]
		if !exists {
			t = &TypeTotal{TypeID: tx.TypeID, Sum: generic.ZeroAmount(), Contribution: generic.ZeroAmount()}
			totals[tx.TypeID] = t
		}
		t.Count++
		t.Sum = t.Sum.Add(tx.Value)
		t.Contribution = t.Contribution.Add(contribution)
		result.Total = result.Total.Add(contribution)
	}

	result.ByType = make([]TypeTotal, 0, len(totals))
	for _, t := range totals {
		result.ByType = append(result.ByType, *t)
	}
	sort.Slice(result.ByType, func(i, j int) bool { return result.ByType[i].TypeID < result.ByType[j].TypeID })
	return result
}

func effectiveRules(ctx context.Context, s generic.RuleStore, typeID generic.AgentTypeID) (generic.RuleSet, error) {
	global, err := s.ListRules(ctx, generic.GlobalScope)
	if err != nil {
		return generic.RuleSet{}, err
	}
	var scoped []generic.FormulaRule
	if typeID != generic.GlobalScope {
		scoped, err = s.ListRules(ctx, typeID)
		if err != nil {
			return generic.RuleSet{}, err
		}
	}
	return generic.NewRuleSet(global, scoped), nil
}
