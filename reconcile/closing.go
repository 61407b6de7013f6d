/*
closing.go - Closing lifecycle manager

PURPOSE:
  Orchestrates create/update/finalize of closings and the append-only
  adjustment trail. Every operation runs in one store transaction so the
  opening balance, the period result and the write see the same data.

STATE MACHINE:
  Active   --Update-->           Active (totals recomputed)
  Active   --Finalize-->         Adjusted
  Adjusted --RecordAdjustment--> Adjusted (+1 adjustment, totals untouched)

  Update on Adjusted and RecordAdjustment on Active are conflicts.

COMPUTED RESULT:
  computed = periodResult(month to date) + opening  (opening from a prior closing)
  computed = periodResult(month to date)            (otherwise)
  variance = finalCounted - computed

SEE ALSO:
  - carryforward.go: Opening balance
  - aggregation.go: Period result
  - generic/closing.go: Closing record
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/reconciliation-engine/generic"
	"go.uber.org/zap"
)

// Closing events reported to the Observer.
const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventFinalized = "finalized"
	EventAdjusted  = "adjusted"
	EventDeleted   = "deleted"
)

// CreateClosingInput is the validated input of Create.
type CreateClosingInput struct {
	AgentID      generic.AgentID
	Date         generic.Date
	ShiftID      generic.ShiftID
	FinalCounted generic.Amount
	Observations string
	CreatedBy    string

	// AdjustmentAmount is the legacy per-closing adjustment. Stored and
	// reported, never part of the computed result.
	AdjustmentAmount generic.Amount
}

// ClosingPatch lists the fields an update may change. Nil means unchanged.
type ClosingPatch struct {
	AgentID          *generic.AgentID
	Date             *generic.Date
	ShiftID          *generic.ShiftID
	FinalCounted     *generic.Amount
	AdjustmentAmount *generic.Amount
	Observations     *string
}

// AdjustmentInput is the validated input of RecordAdjustment.
type AdjustmentInput struct {
	Delta     generic.Amount
	Reason    string
	CreatedBy string
}

type Closings struct {
	store      generic.Store
	aggregator *Aggregator
	dupPolicy  DuplicatePolicy
	now        func() time.Time
	observer   Observer
	logger     *zap.Logger
}

// Policy returns the duplicate-closing policy in force.
func (m *Closings) Policy() DuplicatePolicy { return m.dupPolicy }

// =============================================================================
// CREATE
// =============================================================================

func (m *Closings) Create(ctx context.Context, in CreateClosingInput) (generic.Closing, error) {
	if in.Date.IsZero() {
		return generic.Closing{}, &generic.ValidationError{Field: "closing_date", Message: "closing date is required"}
	}
	if in.ShiftID < 0 {
		return generic.Closing{}, &generic.ValidationError{Field: "shift_id", Message: "invalid shift"}
	}

	var created generic.Closing
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		ac, err := loadAgent(ctx, s, in.AgentID)
		if err != nil {
			return err
		}
		if in.ShiftID != generic.NoShift {
			if _, err := s.GetShift(ctx, in.ShiftID); err != nil {
				return err
			}
		}
		if err := m.checkDuplicate(ctx, s, in.AgentID, in.Date, in.ShiftID, 0); err != nil {
			return err
		}

		opening, err := resolveOpening(ctx, s, ac, in.Date, 0)
		if err != nil {
			return err
		}
		period, err := m.aggregator.compute(ctx, s, ac, generic.MonthToDate(in.Date))
		if err != nil {
			return err
		}

		now := m.now().UTC()
		c := generic.Closing{
			AgentID:          in.AgentID,
			Date:             in.Date,
			ShiftID:          in.ShiftID,
			FinalCounted:     in.FinalCounted,
			AdjustmentAmount: in.AdjustmentAmount,
			Observations:     in.Observations,
			Status:           generic.StatusActive,
			CreatedBy:        in.CreatedBy,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		c.Apply(opening, period.Total)

		created, err = s.CreateClosing(ctx, c)
		return err
	})
	if err != nil {
		return generic.Closing{}, generic.WrapOp("create closing", in.AgentID, in.Date, err)
	}

	m.logger.Info("closing created",
		zap.Int64("closing_id", int64(created.ID)),
		zap.Int64("agent_id", int64(created.AgentID)),
		zap.String("closing_date", created.Date.String()),
		zap.Int64("shift_id", int64(created.ShiftID)),
		zap.String("opening_source", string(created.OpeningSource)),
		zap.String("computed_result", created.ComputedResult.String()),
		zap.String("variance", created.Variance.String()))
	m.observer.ClosingEvent(EventCreated, created.Variance)
	return created, nil
}

// checkDuplicate enforces the configured policy. self is the closing being
// updated (excluded from the check) or zero on create.
func (m *Closings) checkDuplicate(ctx context.Context, s generic.ClosingStore, agentID generic.AgentID, date generic.Date, shiftID generic.ShiftID, self generic.ClosingID) error {
	existing, err := s.ListClosings(ctx, generic.ClosingFilter{AgentID: agentID, From: date, To: date})
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.ID == self {
			continue
		}
		if m.dupPolicy == PerDay {
			return &generic.ConflictError{Reason: fmt.Sprintf(
				"agent %d already has closing %d on %s", agentID, c.ID, date)}
		}
		if c.ShiftID == shiftID {
			return &generic.ConflictError{Reason: fmt.Sprintf(
				"agent %d already has closing %d on %s for this shift", agentID, c.ID, date)}
		}
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies patch to an Active closing. A date change re-resolves the
// opening balance and re-aggregates; every update recomputes the variance.
// The agent of a closing cannot change.
func (m *Closings) Update(ctx context.Context, id generic.ClosingID, patch ClosingPatch) (generic.Closing, error) {
	var updated, original generic.Closing
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		c, err := s.GetClosing(ctx, id)
		if err != nil {
			return err
		}
		original = c
		if !c.IsActive() {
			return &generic.ConflictError{Reason: fmt.Sprintf(
				"closing %d is %s; record an adjustment instead", c.ID, c.Status)}
		}
		if patch.AgentID != nil && *patch.AgentID != c.AgentID {
			return &generic.ValidationError{Field: "agent_id", Message: "agent cannot be changed after creation"}
		}

		recompute := false
		keyChanged := false
		if patch.Date != nil && !patch.Date.Equal(c.Date) {
			if patch.Date.IsZero() {
				return &generic.ValidationError{Field: "closing_date", Message: "closing date is required"}
			}
			c.Date = *patch.Date
			recompute = true
			keyChanged = true
		}
		if patch.ShiftID != nil && *patch.ShiftID != c.ShiftID {
			if *patch.ShiftID != generic.NoShift {
				if _, err := s.GetShift(ctx, *patch.ShiftID); err != nil {
					return err
				}
			}
			c.ShiftID = *patch.ShiftID
			keyChanged = true
		}
		if keyChanged {
			if err := m.checkDuplicate(ctx, s, c.AgentID, c.Date, c.ShiftID, c.ID); err != nil {
				return err
			}
		}
		if patch.FinalCounted != nil {
			c.FinalCounted = *patch.FinalCounted
		}
		if patch.AdjustmentAmount != nil {
			c.AdjustmentAmount = *patch.AdjustmentAmount
		}
		if patch.Observations != nil {
			c.Observations = *patch.Observations
		}

		if recompute {
			ac, err := loadAgent(ctx, s, c.AgentID)
			if err != nil {
				return err
			}
			opening, err := resolveOpening(ctx, s, ac, c.Date, c.ID)
			if err != nil {
				return err
			}
			period, err := m.aggregator.compute(ctx, s, ac, generic.MonthToDate(c.Date))
			if err != nil {
				return err
			}
			c.Apply(opening, period.Total)
		} else {
			c.Reconcile()
		}

		c.UpdatedAt = m.now().UTC()
		if err := s.UpdateClosing(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return generic.Closing{}, generic.WrapOp(fmt.Sprintf("update closing %d", id), original.AgentID, original.Date, err)
	}

	m.logger.Info("closing updated",
		zap.Int64("closing_id", int64(updated.ID)),
		zap.Int64("agent_id", int64(updated.AgentID)),
		zap.String("closing_date", updated.Date.String()),
		zap.String("variance", updated.Variance.String()))
	m.observer.ClosingEvent(EventUpdated, updated.Variance)
	return updated, nil
}

// =============================================================================
// FINALIZE AND ADJUST
// =============================================================================

// Finalize moves an Active closing to Adjusted. Its totals are frozen from
// then on.
func (m *Closings) Finalize(ctx context.Context, id generic.ClosingID) (generic.Closing, error) {
	var finalized, original generic.Closing
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		c, err := s.GetClosing(ctx, id)
		if err != nil {
			return err
		}
		original = c
		if !c.IsActive() {
			return &generic.ConflictError{Reason: fmt.Sprintf("closing %d is already finalized", c.ID)}
		}
		c.Status = generic.StatusAdjusted
		c.UpdatedAt = m.now().UTC()
		if err := s.UpdateClosing(ctx, c); err != nil {
			return err
		}
		finalized = c
		return nil
	})
	if err != nil {
		return generic.Closing{}, generic.WrapOp(fmt.Sprintf("finalize closing %d", id), original.AgentID, original.Date, err)
	}

	m.logger.Info("closing finalized",
		zap.Int64("closing_id", int64(finalized.ID)),
		zap.Int64("agent_id", int64(finalized.AgentID)))
	m.observer.ClosingEvent(EventFinalized, finalized.Variance)
	return finalized, nil
}

// RecordAdjustment appends a correction to an Adjusted closing. The closing's
// computed result and variance are not touched.
func (m *Closings) RecordAdjustment(ctx context.Context, id generic.ClosingID, in AdjustmentInput) (generic.Adjustment, error) {
	adj := generic.Adjustment{
		ClosingID: id,
		Reason:    in.Reason,
		Delta:     in.Delta,
		CreatedBy: in.CreatedBy,
	}
	op := fmt.Sprintf("record adjustment on closing %d", id)
	if err := adj.Validate(); err != nil {
		return generic.Adjustment{}, generic.WrapOp(op, 0, generic.Date{}, err)
	}

	var (
		recorded generic.Adjustment
		closing  generic.Closing
	)
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		c, err := s.GetClosing(ctx, id)
		if err != nil {
			return err
		}
		closing = c
		if c.IsActive() {
			return &generic.ConflictError{Reason: fmt.Sprintf(
				"closing %d must be finalized before adjustments are recorded", c.ID)}
		}
		adj.CreatedAt = m.now().UTC()
		recorded, err = s.AppendAdjustment(ctx, adj)
		return err
	})
	if err != nil {
		return generic.Adjustment{}, generic.WrapOp(op, closing.AgentID, closing.Date, err)
	}

	m.logger.Info("adjustment recorded",
		zap.Int64("closing_id", int64(id)),
		zap.Int64("adjustment_id", int64(recorded.ID)),
		zap.String("delta", recorded.Delta.String()))
	m.observer.ClosingEvent(EventAdjusted, generic.ZeroAmount())
	return recorded, nil
}

// ListAdjustments returns the closing's adjustments, oldest first.
func (m *Closings) ListAdjustments(ctx context.Context, id generic.ClosingID) ([]generic.Adjustment, error) {
	if _, err := m.store.GetClosing(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListAdjustments(ctx, id)
}

// =============================================================================
// QUERIES AND ADMINISTRATION
// =============================================================================

func (m *Closings) Get(ctx context.Context, id generic.ClosingID) (generic.Closing, error) {
	return m.store.GetClosing(ctx, id)
}

func (m *Closings) List(ctx context.Context, filter generic.ClosingFilter) ([]generic.Closing, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, &generic.ValidationError{Field: "to", Message: "end date is before start date"}
	}
	return m.store.ListClosings(ctx, filter)
}

// Delete removes a closing and its adjustments. Administrative only.
func (m *Closings) Delete(ctx context.Context, id generic.ClosingID) error {
	if err := m.store.DeleteClosing(ctx, id); err != nil {
		return err
	}
	m.logger.Warn("closing deleted", zap.Int64("closing_id", int64(id)))
	m.observer.ClosingEvent(EventDeleted, generic.ZeroAmount())
	return nil
}
