/*
rule.go - Formula rules: per transaction type aggregation semantics

PURPOSE:
  A FormulaRule tells the aggregation engine how one transaction type
  contributes to an agent's period result: whether it counts at all, with
  which sign, and whether the values of every agent are summed (shared pool)
  or only the agent's own.

SCOPES:
  Rules are stored per scope. Scope 0 (GlobalScope) applies to every agent
  type. A rule scoped to an agent type overrides the global rule for the same
  transaction type. A transaction type with no rule in either scope is
  excluded.

INVARIANT:
  When Include is false, Multiplier and SumAcrossAgents are ignored.

SEE ALSO:
  - reconcile/aggregation.go: Applies a RuleSet to transactions
  - reconcile/rules.go: Bulk update of a scope
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Multiplier is the sign applied to a transaction type's values.
type Multiplier int

const (
	Plus  Multiplier = 1
	Minus Multiplier = -1
)

func (m Multiplier) Valid() bool { return m == Plus || m == Minus }

func (m Multiplier) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(m)) }

type FormulaRule struct {
	Scope           AgentTypeID
	TypeID          TransactionTypeID
	Include         bool
	Multiplier      Multiplier
	SumAcrossAgents bool
}

// Normalized returns r with the multiplier of an excluded rule set to Plus
// when it is not a valid sign. Excluded rules never contribute, so their
// multiplier is ignored; a valid sign is kept as entered.
func (r FormulaRule) Normalized() FormulaRule {
	if !r.Include && !r.Multiplier.Valid() {
		r.Multiplier = Plus
	}
	return r
}

// Validate checks a rule in isolation. Included rules need a +1 or -1
// multiplier; excluded rules are normalized first.
func (r FormulaRule) Validate() error {
	if r.TypeID <= 0 {
		return &ValidationError{Field: "transaction_type_id", Message: "transaction type is required"}
	}
	if !r.Normalized().Multiplier.Valid() {
		return &ValidationError{Field: "multiplier", Message: "must be 1 or -1"}
	}
	return nil
}

// =============================================================================
// RULE SET - Effective rules for one agent type
// =============================================================================

// RuleSet is the effective rule per transaction type after scope resolution.
type RuleSet struct {
	rules map[TransactionTypeID]FormulaRule
}

// NewRuleSet merges global and type-scoped rules. Scoped rules win.
func NewRuleSet(global, scoped []FormulaRule) RuleSet {
	rules := make(map[TransactionTypeID]FormulaRule, len(global)+len(scoped))
	for _, r := range global {
		rules[r.TypeID] = r
	}
	for _, r := range scoped {
		rules[r.TypeID] = r
	}
	return RuleSet{rules: rules}
}

// Rule returns the effective rule for a type, if one exists.
func (rs RuleSet) Rule(typeID TransactionTypeID) (FormulaRule, bool) {
	r, ok := rs.rules[typeID]
	return r, ok
}

// Included reports whether the type contributes to the result at all.
func (rs RuleSet) Included(typeID TransactionTypeID) bool {
	r, ok := rs.rules[typeID]
	return ok && r.Include
}

// SharedTypes returns the included types whose values are summed across all
// agents, in ascending id order.
func (rs RuleSet) SharedTypes() []TransactionTypeID {
	var ids []TransactionTypeID
	for id, r := range rs.rules {
		if r.Include && r.SumAcrossAgents {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contribution returns the signed value tx adds to agentID's result. Excluded
// types and other agents' records of non-shared types contribute zero.
func (rs RuleSet) Contribution(agentID AgentID, tx Transaction) (Amount, bool) {
	r, ok := rs.rules[tx.TypeID]
	if !ok || !r.Include {
		return ZeroAmount(), false
	}
	if tx.AgentID != agentID && !r.SumAcrossAgents {
		return ZeroAmount(), false
	}
	return tx.Value.Mul(r.Multiplier.Decimal()), true
}

// Rules returns the effective rules ordered by transaction type id.
func (rs RuleSet) Rules() []FormulaRule {
	out := make([]FormulaRule, 0, len(rs.rules))
	for _, r := range rs.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}
