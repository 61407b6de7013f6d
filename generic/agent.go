package generic

import "strings"

// =============================================================================
// AGENT TYPE - Selects the carry-forward strategy
// =============================================================================

// CarryForwardStrategy decides which field of the prior closing becomes the
// opening balance of the next closing on the same day.
type CarryForwardStrategy string

const (
	// CarryStandardResult carries the prior closing's computed result.
	CarryStandardResult CarryForwardStrategy = "standard_result"

	// CarryCountedBalance carries the prior closing's physically counted
	// balance. Used by cash-pool agent types.
	CarryCountedBalance CarryForwardStrategy = "counted_balance"
)

func (s CarryForwardStrategy) Valid() bool {
	return s == CarryStandardResult || s == CarryCountedBalance
}

// AgentType groups agents that share formula rules and a carry-forward strategy.
type AgentType struct {
	ID           AgentTypeID
	Name         string
	CarryForward CarryForwardStrategy
}

// Validate checks required fields. An empty strategy defaults to standard.
func (t *AgentType) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if t.CarryForward == "" {
		t.CarryForward = CarryStandardResult
	}
	if !t.CarryForward.Valid() {
		return &ValidationError{Field: "carry_forward", Message: "must be standard_result or counted_balance"}
	}
	return nil
}

// =============================================================================
// AGENT - Entity whose transactions are reconciled
// =============================================================================

type Agent struct {
	ID     AgentID
	Name   string
	TypeID AgentTypeID
	Active bool
}

func (a *Agent) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if a.TypeID <= 0 {
		return &ValidationError{Field: "type_id", Message: "agent type is required"}
	}
	return nil
}
