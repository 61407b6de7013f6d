/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  domain model in generic/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry validator tags for presence and enums. Monetary
  fields arrive as strings and are parsed once with generic.ParseAmount,
  which rejects non-numeric input and more than two decimals. Nothing past
  this file sees an unparsed amount.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/types.go: Amount JSON encoding
*/
package api

import (
	"time"

	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
)

// =============================================================================
// CATALOG
// =============================================================================

type AgentTypeDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CarryForward string `json:"carry_forward"`
}

type CreateAgentTypeRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	CarryForward string `json:"carry_forward" validate:"omitempty,oneof=standard_result counted_balance"`
}

type AgentDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	TypeID int64  `json:"agent_type_id"`
	Active bool   `json:"active"`
}

type CreateAgentRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	TypeID int64  `json:"agent_type_id" validate:"required,gt=0"`
}

type TransactionTypeDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type CreateTransactionTypeRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Kind string `json:"kind" validate:"omitempty,oneof=regular initial_balance"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID         int64          `json:"id"`
	AgentID    int64          `json:"agent_id"`
	TypeID     int64          `json:"transaction_type_id"`
	Value      generic.Amount `json:"value"`
	Active     bool           `json:"active"`
	OccurredAt time.Time      `json:"occurred_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

type PostTransactionRequest struct {
	AgentID    int64      `json:"agent_id" validate:"required,gt=0"`
	TypeID     int64      `json:"transaction_type_id" validate:"required,gt=0"`
	Value      string     `json:"value" validate:"required"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// =============================================================================
// FORMULA RULES
// =============================================================================

type FormulaRuleDTO struct {
	Scope           int64 `json:"scope"`
	TypeID          int64 `json:"transaction_type_id"`
	Include         bool  `json:"include_in_calculation"`
	Multiplier      int   `json:"multiplier_factor"`
	SumAcrossAgents bool  `json:"sum_across_agents"`
}

type FormulaRuleItem struct {
	TypeID          int64 `json:"transaction_type_id" validate:"required,gt=0"`
	Include         bool  `json:"include_in_calculation"`
	Multiplier      int   `json:"multiplier_factor"`
	SumAcrossAgents bool  `json:"sum_across_agents"`
}

type BulkUpdateRulesRequest struct {
	Rules []FormulaRuleItem `json:"rules" validate:"dive"`
}

// =============================================================================
// AGGREGATION AND CARRY-FORWARD
// =============================================================================

type TypeTotalDTO struct {
	TypeID       int64          `json:"transaction_type_id"`
	Count        int            `json:"count"`
	Sum          generic.Amount `json:"sum"`
	Contribution generic.Amount `json:"contribution"`
}

type PeriodResultDTO struct {
	AgentID int64          `json:"agent_id"`
	From    generic.Date   `json:"from"`
	To      generic.Date   `json:"to"`
	Total   generic.Amount `json:"total"`
	ByType  []TypeTotalDTO `json:"by_type"`
}

type OpeningBalanceDTO struct {
	AgentID       int64          `json:"agent_id"`
	Date          generic.Date   `json:"date"`
	Value         generic.Amount `json:"value"`
	Source        string         `json:"source"`
	ClosingID     int64          `json:"closing_id,omitempty"`
	TransactionID int64          `json:"transaction_id,omitempty"`
}

// =============================================================================
// CLOSINGS
// =============================================================================

type ClosingDTO struct {
	ID               int64          `json:"id"`
	AgentID          int64          `json:"agent_id"`
	Date             generic.Date   `json:"closing_date"`
	ShiftID          int64          `json:"shift_id,omitempty"`
	OpeningBalance   generic.Amount `json:"opening_balance"`
	OpeningSource    string         `json:"opening_source"`
	PeriodResult     generic.Amount `json:"period_result"`
	AdjustmentAmount generic.Amount `json:"adjustment_amount"`
	ComputedResult   generic.Amount `json:"computed_result"`
	FinalCounted     generic.Amount `json:"final_counted_balance"`
	Variance         generic.Amount `json:"variance"`
	Observations     string         `json:"observations"`
	Status           string         `json:"status"`
	CreatedBy        string         `json:"created_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type CreateClosingRequest struct {
	AgentID          int64  `json:"agent_id" validate:"required,gt=0"`
	Date             string `json:"closing_date" validate:"required"`
	ShiftID          *int64 `json:"shift_id,omitempty" validate:"omitempty,gte=0"`
	FinalCounted     string `json:"final_counted_balance" validate:"required"`
	AdjustmentAmount string `json:"adjustment_amount,omitempty"`
	Observations     string `json:"observations" validate:"max=1000"`
	CreatedBy        string `json:"created_by" validate:"max=100"`
}

type UpdateClosingRequest struct {
	AgentID          *int64  `json:"agent_id,omitempty"`
	Date             *string `json:"closing_date,omitempty"`
	ShiftID          *int64  `json:"shift_id,omitempty" validate:"omitempty,gte=0"`
	FinalCounted     *string `json:"final_counted_balance,omitempty"`
	AdjustmentAmount *string `json:"adjustment_amount,omitempty"`
	Observations     *string `json:"observations,omitempty" validate:"omitempty,max=1000"`
}

type AdjustmentDTO struct {
	ID        int64          `json:"id"`
	ClosingID int64          `json:"closing_id"`
	Reason    string         `json:"reason"`
	Delta     generic.Amount `json:"delta"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type RecordAdjustmentRequest struct {
	Delta     string `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=500"`
	CreatedBy string `json:"created_by" validate:"max=100"`
}

// =============================================================================
// SHIFTS
// =============================================================================

type ShiftDTO struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	ScheduledStart string     `json:"scheduled_start"`
	ScheduledEnd   string     `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	ClockedIn      bool       `json:"clocked_in"`
}

type CreateShiftRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	ScheduledStart string `json:"scheduled_start" validate:"required"`
	ScheduledEnd   string `json:"scheduled_end" validate:"required"`
}

type ClockRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAgentTypeDTO(t generic.AgentType) AgentTypeDTO {
	return AgentTypeDTO{ID: int64(t.ID), Name: t.Name, CarryForward: string(t.CarryForward)}
}

func toAgentDTO(a generic.Agent) AgentDTO {
	return AgentDTO{ID: int64(a.ID), Name: a.Name, TypeID: int64(a.TypeID), Active: a.Active}
}

func toTransactionTypeDTO(t generic.TransactionType) TransactionTypeDTO {
	return TransactionTypeDTO{ID: int64(t.ID), Name: t.Name, Kind: string(t.Kind)}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:         int64(tx.ID),
		AgentID:    int64(tx.AgentID),
		TypeID:     int64(tx.TypeID),
		Value:      tx.Value,
		Active:     tx.Active,
		OccurredAt: tx.OccurredAt,
		CreatedAt:  tx.CreatedAt,
	}
}

func toFormulaRuleDTO(r generic.FormulaRule) FormulaRuleDTO {
	return FormulaRuleDTO{
		Scope:           int64(r.Scope),
		TypeID:          int64(r.TypeID),
		Include:         r.Include,
		Multiplier:      int(r.Multiplier),
		SumAcrossAgents: r.SumAcrossAgents,
	}
}

func toPeriodResultDTO(r reconcile.PeriodResult) PeriodResultDTO {
	dto := PeriodResultDTO{
		AgentID: int64(r.AgentID),
		From:    r.Period.Start,
		To:      r.Period.End,
		Total:   r.Total,
		ByType:  make([]TypeTotalDTO, len(r.ByType)),
	}
	for i, t := range r.ByType {
		dto.ByType[i] = TypeTotalDTO{
			TypeID:       int64(t.TypeID),
			Count:        t.Count,
			Sum:          t.Sum,
			Contribution: t.Contribution,
		}
	}
	return dto
}

func toClosingDTO(c generic.Closing) ClosingDTO {
	return ClosingDTO{
		ID:               int64(c.ID),
		AgentID:          int64(c.AgentID),
		Date:             c.Date,
		ShiftID:          int64(c.ShiftID),
		OpeningBalance:   c.OpeningBalance,
		OpeningSource:    string(c.OpeningSource),
		PeriodResult:     c.PeriodResult,
		AdjustmentAmount: c.AdjustmentAmount,
		ComputedResult:   c.ComputedResult,
		FinalCounted:     c.FinalCounted,
		Variance:         c.Variance,
		Observations:     c.Observations,
		Status:           string(c.Status),
		CreatedBy:        c.CreatedBy,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func toAdjustmentDTO(a generic.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:        int64(a.ID),
		ClosingID: int64(a.ClosingID),
		Reason:    a.Reason,
		Delta:     a.Delta,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
	}
}

func toShiftDTO(s generic.Shift) ShiftDTO {
	return ShiftDTO{
		ID:             int64(s.ID),
		Name:           s.Name,
		ScheduledStart: s.ScheduledStart.String(),
		ScheduledEnd:   s.ScheduledEnd.String(),
		ActualStart:    s.ActualStart,
		ActualEnd:      s.ActualEnd,
		ClockedIn:      s.ClockedIn(),
	}
}
