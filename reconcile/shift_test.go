package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
)

func TestShifts_ClockInAndOut(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	morning := createShift(t, f, "Morning", "06:00", "14:00")

	// GIVEN: A clocked-in shift
	started, err := f.engine.Shifts.ClockIn(ctx, morning.ID, at(6))
	require.NoError(t, err)
	require.NotNil(t, started.ActualStart)
	assert.True(t, started.ClockedIn())

	// WHEN: Clocking in again
	_, err = f.engine.Shifts.ClockIn(ctx, morning.ID, at(7))

	// THEN: Conflict
	assert.True(t, generic.IsConflict(err))

	// WHEN: Clocking out before the start
	_, err = f.engine.Shifts.ClockOut(ctx, morning.ID, at(5))

	// THEN: Validation error
	assert.True(t, generic.IsClientError(err))

	// WHEN: Clocking out with no time given
	ended, err := f.engine.Shifts.ClockOut(ctx, morning.ID, time.Time{})

	// THEN: The fixed clock is used
	require.NoError(t, err)
	require.NotNil(t, ended.ActualEnd)
	assert.True(t, ended.ActualEnd.Equal(now))
	assert.False(t, ended.ClockedIn())

	_, err = f.engine.Shifts.ClockOut(ctx, morning.ID, at(20))
	assert.True(t, generic.IsConflict(err), "not clocked in")

	// A new run clears the previous end.
	restarted, err := f.engine.Shifts.ClockIn(ctx, morning.ID, at(21))
	require.NoError(t, err)
	assert.Nil(t, restarted.ActualEnd)
}

func TestShifts_Current(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()

	// GIVEN: No shifts
	current, err := f.engine.Shifts.Current(ctx, at(9))
	require.NoError(t, err)
	assert.Nil(t, current)

	morning := createShift(t, f, "Morning", "06:00", "14:00")
	afternoon := createShift(t, f, "Afternoon", "14:00", "22:00")

	// THEN: The scheduled window decides
	current, err = f.engine.Shifts.Current(ctx, at(9))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, morning.ID, current.ID)

	current, err = f.engine.Shifts.Current(ctx, at(23))
	require.NoError(t, err)
	assert.Nil(t, current, "outside every window")

	// WHEN: The afternoon shift is clocked in early
	_, err = f.engine.Shifts.ClockIn(ctx, afternoon.ID, at(12))
	require.NoError(t, err)

	// THEN: The clocked-in shift wins over the schedule
	current, err = f.engine.Shifts.Current(ctx, at(12))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, afternoon.ID, current.ID)
}

func TestShifts_CreateValidation(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()

	_, err := f.engine.Shifts.Create(ctx, generic.Shift{Name: "   "})
	assert.True(t, generic.IsClientError(err))

	_, err = f.engine.Shifts.Create(ctx, generic.Shift{Name: "Late", ScheduledStart: 24 * 60})
	assert.True(t, generic.IsClientError(err))

	_, err = f.engine.Shifts.ClockIn(ctx, 999, at(9))
	assert.True(t, generic.IsNotFound(err))
}
