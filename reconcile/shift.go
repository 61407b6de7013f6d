package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// SHIFT CLOCK
// =============================================================================

// Shifts manages shift clock state and answers which shift is current.
type Shifts struct {
	store generic.Store
	now   func() time.Time
}

func (m *Shifts) Create(ctx context.Context, sh generic.Shift) (generic.Shift, error) {
	if err := sh.Validate(); err != nil {
		return generic.Shift{}, err
	}
	sh.ActualStart, sh.ActualEnd = nil, nil
	return m.store.CreateShift(ctx, sh)
}

func (m *Shifts) Get(ctx context.Context, id generic.ShiftID) (generic.Shift, error) {
	return m.store.GetShift(ctx, id)
}

func (m *Shifts) List(ctx context.Context) ([]generic.Shift, error) {
	return m.store.ListShifts(ctx)
}

// ClockIn starts a new run of the shift. A zero at means now.
func (m *Shifts) ClockIn(ctx context.Context, id generic.ShiftID, at time.Time) (generic.Shift, error) {
	if at.IsZero() {
		at = m.now()
	}
	at = at.UTC()

	var started generic.Shift
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		sh, err := s.GetShift(ctx, id)
		if err != nil {
			return err
		}
		if sh.ClockedIn() {
			return &generic.ConflictError{Reason: fmt.Sprintf("shift %d is already clocked in", sh.ID)}
		}
		sh.ActualStart = &at
		sh.ActualEnd = nil
		if err := s.UpdateShift(ctx, sh); err != nil {
			return err
		}
		started = sh
		return nil
	})
	return started, err
}

// ClockOut ends the current run of the shift. A zero at means now.
func (m *Shifts) ClockOut(ctx context.Context, id generic.ShiftID, at time.Time) (generic.Shift, error) {
	if at.IsZero() {
		at = m.now()
	}
	at = at.UTC()

	var ended generic.Shift
	err := m.store.WithTx(ctx, func(s generic.Store) error {
		sh, err := s.GetShift(ctx, id)
		if err != nil {
			return err
		}
		if !sh.ClockedIn() {
			return &generic.ConflictError{Reason: fmt.Sprintf("shift %d is not clocked in", sh.ID)}
		}
		if at.Before(*sh.ActualStart) {
			return &generic.ValidationError{Field: "at", Message: "clock-out is before clock-in"}
		}
		sh.ActualEnd = &at
		if err := s.UpdateShift(ctx, sh); err != nil {
			return err
		}
		ended = sh
		return nil
	})
	return ended, err
}

// Current returns the clocked-in shift, else the first shift whose scheduled
// window contains at, else nil.
func (m *Shifts) Current(ctx context.Context, at time.Time) (*generic.Shift, error) {
	if at.IsZero() {
		at = m.now()
	}
	shifts, err := m.store.ListShifts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range shifts {
		if shifts[i].ClockedIn() {
			return &shifts[i], nil
		}
	}
	for i := range shifts {
		if shifts[i].Scheduled(at) {
			return &shifts[i], nil
		}
	}
	return nil, nil
}
