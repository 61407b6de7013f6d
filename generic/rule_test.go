package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/reconciliation-engine/generic"
)

func tx(agent generic.AgentID, typeID generic.TransactionTypeID, value string) generic.Transaction {
	return generic.Transaction{AgentID: agent, TypeID: typeID, Value: generic.MustAmount(value), Active: true}
}

func TestRuleSet_ScopedRuleOverridesGlobal(t *testing.T) {
	// GIVEN: A global +1 rule and a scoped -1 rule for the same type
	// WHEN: Merging
	// THEN: The scoped rule wins

	rs := generic.NewRuleSet(
		[]generic.FormulaRule{{TypeID: 1, Include: true, Multiplier: generic.Plus}},
		[]generic.FormulaRule{{Scope: 3, TypeID: 1, Include: true, Multiplier: generic.Minus}},
	)

	r, ok := rs.Rule(1)
	assert.True(t, ok)
	assert.Equal(t, generic.Minus, r.Multiplier)

	got, ok := rs.Contribution(7, tx(7, 1, "50"))
	assert.True(t, ok)
	assert.Equal(t, "-50.00", got.String())
}

func TestRuleSet_MissingOrExcludedRuleContributesNothing(t *testing.T) {
	rs := generic.NewRuleSet([]generic.FormulaRule{
		{TypeID: 1, Include: false, Multiplier: generic.Minus, SumAcrossAgents: true},
	}, nil)

	_, ok := rs.Contribution(7, tx(7, 1, "100"))
	assert.False(t, ok, "excluded type")

	_, ok = rs.Contribution(7, tx(7, 2, "100"))
	assert.False(t, ok, "type without a rule")

	assert.Empty(t, rs.SharedTypes(), "an excluded rule never widens the scope")
}

func TestRuleSet_SumAcrossAgentsOnlyWidensThatType(t *testing.T) {
	rs := generic.NewRuleSet([]generic.FormulaRule{
		{TypeID: 1, Include: true, Multiplier: generic.Plus},
		{TypeID: 2, Include: true, Multiplier: generic.Plus, SumAcrossAgents: true},
	}, nil)

	_, ok := rs.Contribution(7, tx(8, 1, "10"))
	assert.False(t, ok, "other agent's record of a per-agent type")

	got, ok := rs.Contribution(7, tx(8, 2, "10"))
	assert.True(t, ok, "other agent's record of a shared type")
	assert.Equal(t, "10.00", got.String())

	assert.Equal(t, []generic.TransactionTypeID{2}, rs.SharedTypes())
}

func TestFormulaRule_Validate(t *testing.T) {
	assert.NoError(t, generic.FormulaRule{TypeID: 1, Include: true, Multiplier: generic.Minus}.Validate())
	assert.True(t, generic.IsClientError(generic.FormulaRule{TypeID: 1, Include: true, Multiplier: 2}.Validate()))
	assert.True(t, generic.IsClientError(generic.FormulaRule{TypeID: 1, Include: true}.Validate()))
	assert.True(t, generic.IsClientError(generic.FormulaRule{Include: true, Multiplier: generic.Plus}.Validate()))

	// Excluded rules ignore the multiplier.
	assert.NoError(t, generic.FormulaRule{TypeID: 1, Multiplier: 2}.Validate())
	assert.NoError(t, generic.FormulaRule{TypeID: 1}.Validate())
}

func TestFormulaRule_NormalizedOnlyTouchesExcludedRules(t *testing.T) {
	assert.Equal(t, generic.Plus, generic.FormulaRule{TypeID: 1}.Normalized().Multiplier)
	assert.Equal(t, generic.Plus, generic.FormulaRule{TypeID: 1, Multiplier: 7}.Normalized().Multiplier)
	assert.Equal(t, generic.Minus, generic.FormulaRule{TypeID: 1, Multiplier: generic.Minus}.Normalized().Multiplier)
	assert.Equal(t, generic.Multiplier(2), generic.FormulaRule{TypeID: 1, Include: true, Multiplier: 2}.Normalized().Multiplier)
}

func TestClosing_ApplyAddsOnlyCarriedOpening(t *testing.T) {
	// GIVEN: A closing counted at 400 over a period result of 380
	c := generic.Closing{FinalCounted: generic.MustAmount("400")}

	// WHEN: The opening comes from an initial balance transaction
	c.Apply(generic.OpeningBalance{Value: generic.MustAmount("1000"), Source: generic.SourceInitialTransaction}, generic.MustAmount("380"))

	// THEN: It is reported but not added
	assert.Equal(t, "1000.00", c.OpeningBalance.String())
	assert.Equal(t, "380.00", c.ComputedResult.String())
	assert.Equal(t, "20.00", c.Variance.String())

	// WHEN: The opening is carried from a prior closing
	c.Apply(generic.OpeningBalance{Value: generic.MustAmount("380"), Source: generic.SourcePriorClosing, ClosingID: 1}, generic.MustAmount("380"))

	// THEN: It is additive and the variance is final - computed
	assert.Equal(t, "760.00", c.ComputedResult.String())
	assert.Equal(t, "-360.00", c.Variance.String())
}

func TestClosing_CarryValueFollowsStrategy(t *testing.T) {
	c := generic.Closing{
		ComputedResult: generic.MustAmount("380"),
		FinalCounted:   generic.MustAmount("375.50"),
	}
	assert.Equal(t, "380.00", c.CarryValue(generic.CarryStandardResult).String())
	assert.Equal(t, "375.50", c.CarryValue(generic.CarryCountedBalance).String())
}
