package reconcile_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
)

func createShift(t *testing.T, f *fixture, name, start, end string) generic.Shift {
	t.Helper()
	s, err := generic.ParseClockTime("scheduled_start", start)
	require.NoError(t, err)
	e, err := generic.ParseClockTime("scheduled_end", end)
	require.NoError(t, err)
	sh, err := f.engine.Shifts.Create(context.Background(), generic.Shift{Name: name, ScheduledStart: s, ScheduledEnd: e})
	require.NoError(t, err)
	return sh
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateClosing_FirstOfDayUsesZeroOpening(t *testing.T) {
	// GIVEN: Sales 500, withdrawals 120 and no prior closing
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	f.post(f.agent.ID, f.typeA.ID, "500", at(9))
	f.post(f.agent.ID, f.typeB.ID, "120", at(10))

	// WHEN: Closing with a counted balance of 400
	c := f.close(today, generic.NoShift, "400")

	// THEN: computed = 380, variance = 400 - 380
	assert.Equal(t, generic.StatusActive, c.Status)
	assert.Equal(t, generic.SourceZero, c.OpeningSource)
	assert.Equal(t, "380.00", c.PeriodResult.String())
	assert.Equal(t, "380.00", c.ComputedResult.String())
	assert.Equal(t, "20.00", c.Variance.String())
	assert.Equal(t, "cashier", c.CreatedBy)
	assert.Equal(t, []string{reconcile.EventCreated}, f.observer.events)
}

func TestCreateClosing_SecondShiftAddsCarriedOpening(t *testing.T) {
	// GIVEN: A morning closing with computed result 380
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	morning := createShift(t, f, "Morning", "06:00", "14:00")
	afternoon := createShift(t, f, "Afternoon", "14:00", "22:00")
	f.post(f.agent.ID, f.typeA.ID, "500", at(9))
	f.post(f.agent.ID, f.typeB.ID, "120", at(10))
	first := f.close(today, morning.ID, "380")

	// WHEN: The afternoon shift closes with 400 counted
	second := f.close(today, afternoon.ID, "400")

	// THEN: The opening is carried and added, and the variance is derived from it
	assert.Equal(t, generic.SourcePriorClosing, second.OpeningSource)
	assert.Equal(t, "380.00", second.OpeningBalance.String())
	assert.Equal(t, "760.00", second.ComputedResult.String())
	assert.True(t, second.Variance.Equal(second.FinalCounted.Sub(second.ComputedResult)))
	assert.Equal(t, "-360.00", second.Variance.String())

	// AND: The first closing is untouched
	stored, err := f.engine.Closings.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "380.00", stored.ComputedResult.String())
}

func TestCreateClosing_InitialBalanceIsReportedNotAdded(t *testing.T) {
	f := newFixture(t, generic.CarryCountedBalance, reconcile.PerShift)
	f.post(f.agent.ID, f.initial.ID, "1000", at(6))
	f.post(f.agent.ID, f.typeA.ID, "400", at(9))
	f.post(f.agent.ID, f.typeB.ID, "50", at(10))

	c := f.close(today, generic.NoShift, "345")

	assert.Equal(t, generic.SourceInitialTransaction, c.OpeningSource)
	assert.Equal(t, "1000.00", c.OpeningBalance.String())
	assert.Equal(t, "350.00", c.ComputedResult.String())
	assert.Equal(t, "-5.00", c.Variance.String())
}

func TestCreateClosing_LegacyAdjustmentAmountIsNotInTheResult(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	f.post(f.agent.ID, f.typeA.ID, "100", at(9))

	c, err := f.engine.Closings.Create(context.Background(), reconcile.CreateClosingInput{
		AgentID:          f.agent.ID,
		Date:             today,
		FinalCounted:     generic.MustAmount("100"),
		AdjustmentAmount: generic.MustAmount("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "25.00", c.AdjustmentAmount.String())
	assert.Equal(t, "100.00", c.ComputedResult.String())
	assert.True(t, c.Variance.IsZero())
}

func TestCreateClosing_RejectsInvalidReferences(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()

	_, err := f.engine.Closings.Create(ctx, reconcile.CreateClosingInput{AgentID: f.agent.ID, FinalCounted: generic.ZeroAmount()})
	assert.True(t, generic.IsClientError(err), "missing date")

	_, err = f.engine.Closings.Create(ctx, reconcile.CreateClosingInput{AgentID: 999, Date: today})
	assert.True(t, generic.IsNotFound(err), "unknown agent")

	_, err = f.engine.Closings.Create(ctx, reconcile.CreateClosingInput{AgentID: f.agent.ID, Date: today, ShiftID: 42})
	assert.True(t, generic.IsNotFound(err), "unknown shift")

	closings, err := f.engine.Closings.List(ctx, generic.ClosingFilter{})
	require.NoError(t, err)
	assert.Empty(t, closings)
}

func TestCreateClosing_DuplicatePolicies(t *testing.T) {
	t.Run("per shift", func(t *testing.T) {
		f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
		morning := createShift(t, f, "Morning", "06:00", "14:00")
		afternoon := createShift(t, f, "Afternoon", "14:00", "22:00")
		f.close(today, morning.ID, "0")

		_, err := f.engine.Closings.Create(context.Background(), reconcile.CreateClosingInput{AgentID: f.agent.ID, Date: today, ShiftID: morning.ID})
		assert.True(t, generic.IsConflict(err))

		f.close(today, afternoon.ID, "0")
		f.close(today.AddDays(1), morning.ID, "0")
	})

	t.Run("per day", func(t *testing.T) {
		f := newFixture(t, generic.CarryStandardResult, reconcile.PerDay)
		morning := createShift(t, f, "Morning", "06:00", "14:00")
		afternoon := createShift(t, f, "Afternoon", "14:00", "22:00")
		f.close(today, morning.ID, "0")

		_, err := f.engine.Closings.Create(context.Background(), reconcile.CreateClosingInput{AgentID: f.agent.ID, Date: today, ShiftID: afternoon.ID})
		assert.True(t, generic.IsConflict(err))
		assert.Equal(t, reconcile.PerDay, f.engine.Closings.Policy())
	})
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := reconcile.ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, reconcile.PerShift, p)

	p, err = reconcile.ParseDuplicatePolicy("per_day")
	require.NoError(t, err)
	assert.Equal(t, reconcile.PerDay, p)

	_, err = reconcile.ParseDuplicatePolicy("never")
	assert.Error(t, err)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateClosing_CountedBalanceChangeKeepsSnapshot(t *testing.T) {
	// GIVEN: A closing and a transaction posted after it
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	f.post(f.agent.ID, f.typeA.ID, "500", at(9))
	c := f.close(today, generic.NoShift, "500")
	f.post(f.agent.ID, f.typeA.ID, "50", at(19))

	// WHEN: Only the counted balance changes
	counted := generic.MustAmount("480")
	updated, err := f.engine.Closings.Update(context.Background(), c.ID, reconcile.ClosingPatch{FinalCounted: &counted})

	// THEN: The computed result is the stored snapshot and the variance follows
	require.NoError(t, err)
	assert.Equal(t, "500.00", updated.ComputedResult.String())
	assert.Equal(t, "-20.00", updated.Variance.String())
}

func TestUpdateClosing_DateChangeRecomputes(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	f.post(f.agent.ID, f.typeA.ID, "500", at(9))
	f.post(f.agent.ID, f.typeB.ID, "120", at(10))
	c := f.close(today, generic.NoShift, "380")
	f.post(f.agent.ID, f.typeA.ID, "100", at(9).AddDate(0, 0, 1))

	next := today.AddDays(1)
	updated, err := f.engine.Closings.Update(context.Background(), c.ID, reconcile.ClosingPatch{Date: &next})
	require.NoError(t, err)

	assert.Equal(t, "2024-05-02", updated.Date.String())
	assert.Equal(t, generic.SourceZero, updated.OpeningSource, "never carries from itself")
	assert.Equal(t, "480.00", updated.ComputedResult.String())
	assert.Equal(t, "-100.00", updated.Variance.String())
}

func TestUpdateClosing_Guards(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	c := f.close(today, generic.NoShift, "0")

	other := f.createAgent("Agent 8").ID
	_, err := f.engine.Closings.Update(ctx, c.ID, reconcile.ClosingPatch{AgentID: &other})
	assert.True(t, generic.IsClientError(err), "agent cannot change")

	_, err = f.engine.Closings.Update(ctx, 999, reconcile.ClosingPatch{})
	assert.True(t, generic.IsNotFound(err))

	_, err = f.engine.Closings.Finalize(ctx, c.ID)
	require.NoError(t, err)

	note := "late edit"
	_, err = f.engine.Closings.Update(ctx, c.ID, reconcile.ClosingPatch{Observations: &note})
	assert.True(t, generic.IsConflict(err), "adjusted closings are frozen")
}

func TestClosingErrors_CarryOperationContext(t *testing.T) {
	// GIVEN: A finalized closing
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	c := f.close(today, generic.NoShift, "0")
	_, err := f.engine.Closings.Finalize(ctx, c.ID)
	require.NoError(t, err)

	// WHEN: Each mutation is refused
	note := "late edit"
	_, updateErr := f.engine.Closings.Update(ctx, c.ID, reconcile.ClosingPatch{Observations: &note})
	_, finalizeErr := f.engine.Closings.Finalize(ctx, c.ID)
	_, adjustErr := f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.MustAmount("1"), Reason: " "})

	// THEN: The error names the operation and keeps its kind
	var opErr *generic.OperationError
	require.ErrorAs(t, updateErr, &opErr)
	assert.Equal(t, fmt.Sprintf("update closing %d", c.ID), opErr.Op)
	assert.Equal(t, f.agent.ID, opErr.AgentID)
	assert.True(t, opErr.Date.Equal(today))

	require.ErrorAs(t, finalizeErr, &opErr)
	assert.Equal(t, fmt.Sprintf("finalize closing %d", c.ID), opErr.Op)
	assert.Equal(t, f.agent.ID, opErr.AgentID)

	require.ErrorAs(t, adjustErr, &opErr)
	assert.Equal(t, fmt.Sprintf("record adjustment on closing %d", c.ID), opErr.Op)

	assert.True(t, generic.IsConflict(updateErr))
	assert.True(t, generic.IsConflict(finalizeErr))
	assert.True(t, generic.IsClientError(adjustErr))

	// Unknown closings still name the operation.
	_, err = f.engine.Closings.RecordAdjustment(ctx, 999, reconcile.AdjustmentInput{Delta: generic.MustAmount("1"), Reason: "ghost"})
	assert.True(t, generic.IsNotFound(err))
	assert.Contains(t, err.Error(), "record adjustment on closing 999")
}

// =============================================================================
// FINALIZE AND ADJUST
// =============================================================================

func TestAdjustments_AppendOnlyAfterFinalize(t *testing.T) {
	// GIVEN: An active closing
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	f.post(f.agent.ID, f.typeA.ID, "500", at(9))
	c := f.close(today, generic.NoShift, "490")

	// WHEN: Adjusting before finalize
	_, err := f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.MustAmount("10"), Reason: "miscount"})

	// THEN: It is a conflict
	assert.True(t, generic.IsConflict(err))

	// WHEN: Finalizing and then recording two adjustments
	finalized, err := f.engine.Closings.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusAdjusted, finalized.Status)

	_, err = f.engine.Closings.Finalize(ctx, c.ID)
	assert.True(t, generic.IsConflict(err), "finalize twice")

	first, err := f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.MustAmount("10"), Reason: " miscount ", CreatedBy: "supervisor"})
	require.NoError(t, err)
	_, err = f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.MustAmount("-2.50"), Reason: "refund"})
	require.NoError(t, err)

	// THEN: The totals are untouched and the trail is in order
	stored, err := f.engine.Closings.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", stored.ComputedResult.String())
	assert.Equal(t, "-10.00", stored.Variance.String())

	trail, err := f.engine.Closings.ListAdjustments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, first.ID, trail[0].ID)
	assert.Equal(t, "miscount", trail[0].Reason)
	assert.Equal(t, "-2.50", trail[1].Delta.String())

	assert.Equal(t, []string{
		reconcile.EventCreated,
		reconcile.EventFinalized,
		reconcile.EventAdjusted,
		reconcile.EventAdjusted,
	}, f.observer.events)
}

func TestRecordAdjustment_Validation(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	c := f.close(today, generic.NoShift, "0")
	_, err := f.engine.Closings.Finalize(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.MustAmount("1"), Reason: "  "})
	assert.True(t, generic.IsClientError(err))

	_, err = f.engine.Closings.RecordAdjustment(ctx, c.ID, reconcile.AdjustmentInput{Delta: generic.ZeroAmount(), Reason: "noop"})
	assert.True(t, generic.IsClientError(err))

	_, err = f.engine.Closings.RecordAdjustment(ctx, 999, reconcile.AdjustmentInput{Delta: generic.MustAmount("1"), Reason: "ghost"})
	assert.True(t, generic.IsNotFound(err))
}

func TestDeleteClosing(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	c := f.close(today, generic.NoShift, "0")

	require.NoError(t, f.engine.Closings.Delete(ctx, c.ID))

	_, err := f.engine.Closings.Get(ctx, c.ID)
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(f.engine.Closings.Delete(ctx, c.ID)))

	// The slot is free again.
	f.close(today, generic.NoShift, "0")
}

func TestListClosings_Filters(t *testing.T) {
	f := newFixture(t, generic.CarryStandardResult, reconcile.PerShift)
	ctx := context.Background()
	first := f.close(today, generic.NoShift, "0")
	f.close(today.AddDays(1), generic.NoShift, "0")
	_, err := f.engine.Closings.Finalize(ctx, first.ID)
	require.NoError(t, err)

	adjusted, err := f.engine.Closings.List(ctx, generic.ClosingFilter{Status: generic.StatusAdjusted})
	require.NoError(t, err)
	require.Len(t, adjusted, 1)
	assert.Equal(t, first.ID, adjusted[0].ID)

	onSecond, err := f.engine.Closings.List(ctx, generic.ClosingFilter{AgentID: f.agent.ID, From: today.AddDays(1), To: today.AddDays(1)})
	require.NoError(t, err)
	assert.Len(t, onSecond, 1)

	_, err = f.engine.Closings.List(ctx, generic.ClosingFilter{From: today.AddDays(1), To: today})
	assert.True(t, generic.IsClientError(err))
}
