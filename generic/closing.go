/*
closing.go - Closing and adjustment records

PURPOSE:
  A Closing reconciles one agent for one day (optionally one shift): it
  balances the opening balance and the period activity against the cash
  physically counted at the end.

LIFECYCLE:
  Draft (client only) -> Active -> Adjusted

  Active:   totals may be recomputed by an update
  Adjusted: totals are frozen; corrections are appended as Adjustments

VARIANCE:
  variance = finalCounted - computedResult
  It is always derived from the two stored fields, never entered.

SEE ALSO:
  - reconcile/closing.go: Lifecycle manager
  - reconcile/carryforward.go: Opening balance resolution
*/
package generic

import (
	"strings"
	"time"
)

// =============================================================================
// CLOSING STATUS
// =============================================================================

type ClosingStatus string

const (
	StatusActive   ClosingStatus = "active"
	StatusAdjusted ClosingStatus = "adjusted"
)

// =============================================================================
// OPENING BALANCE - Result of carry-forward resolution
// =============================================================================

// OpeningSource records where an opening balance came from.
type OpeningSource string

const (
	SourcePriorClosing       OpeningSource = "prior_closing"
	SourceInitialTransaction OpeningSource = "initial_transaction"
	SourceZero               OpeningSource = "zero"
)

type OpeningBalance struct {
	Value         Amount
	Source        OpeningSource
	ClosingID     ClosingID     // set when Source is SourcePriorClosing
	TransactionID TransactionID // set when Source is SourceInitialTransaction
}

// Carried reports whether the balance is added into the computed result.
// Only a balance carried from a prior closing is.
func (o OpeningBalance) Carried() bool { return o.Source == SourcePriorClosing }

// =============================================================================
// CLOSING
// =============================================================================

type Closing struct {
	ID      ClosingID
	AgentID AgentID
	Date    Date
	ShiftID ShiftID

	OpeningBalance Amount
	OpeningSource  OpeningSource
	PeriodResult   Amount

	// AdjustmentAmount is a legacy field kept for reporting. It is not part
	// of ComputedResult.
	AdjustmentAmount Amount

	ComputedResult Amount
	FinalCounted   Amount
	Variance       Amount
	Observations   string
	Status         ClosingStatus

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Apply sets the opening balance, period result and derived totals.
func (c *Closing) Apply(opening OpeningBalance, period Amount) {
	c.OpeningBalance = opening.Value
	c.OpeningSource = opening.Source
	c.PeriodResult = period
	c.ComputedResult = period
	if opening.Carried() {
		c.ComputedResult = period.Add(opening.Value)
	}
	c.Reconcile()
}

// Reconcile recomputes the variance from the stored totals.
func (c *Closing) Reconcile() {
	c.Variance = c.FinalCounted.Sub(c.ComputedResult)
}

// IsActive reports whether totals may still change.
func (c *Closing) IsActive() bool { return c.Status == StatusActive }

// CarryValue returns the value a later closing on the same day starts from.
func (c *Closing) CarryValue(strategy CarryForwardStrategy) Amount {
	if strategy == CarryCountedBalance {
		return c.FinalCounted
	}
	return c.ComputedResult
}

// ClosingFilter narrows closing listings. Zero fields do not filter.
type ClosingFilter struct {
	AgentID AgentID
	From    Date
	To      Date
	Status  ClosingStatus
}

// Matches reports whether c passes the filter.
func (f ClosingFilter) Matches(c Closing) bool {
	if f.AgentID != 0 && c.AgentID != f.AgentID {
		return false
	}
	if !f.From.IsZero() && c.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && c.Date.After(f.To) {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// =============================================================================
// ADJUSTMENT - Append-only correction of an adjusted closing
// =============================================================================

type Adjustment struct {
	ID        AdjustmentID
	ClosingID ClosingID
	Reason    string
	Delta     Amount
	CreatedBy string
	CreatedAt time.Time
}

func (a *Adjustment) Validate() error {
	a.Reason = strings.TrimSpace(a.Reason)
	if a.Reason == "" {
		return &ValidationError{Field: "reason", Message: "reason is required"}
	}
	if a.Delta.IsZero() {
		return &ValidationError{Field: "delta", Message: "delta must not be zero"}
	}
	return nil
}
