package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/generic"
)

func seedAgent(t *testing.T, m *Memory) generic.Agent {
	t.Helper()
	ctx := context.Background()
	at, err := m.CreateAgentType(ctx, generic.AgentType{Name: "Reseller", CarryForward: generic.CarryStandardResult})
	require.NoError(t, err)
	a, err := m.CreateAgent(ctx, generic.Agent{Name: "Kiosk", TypeID: at.ID, Active: true})
	require.NoError(t, err)
	return a
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: An agent
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)
	date := generic.MustDate("2024-05-01")

	// WHEN: A transaction creates a closing and then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx generic.Store) error {
		_, err := tx.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, Status: generic.StatusActive})
		require.NoError(t, err)
		return boom
	})

	// THEN: The error is returned and nothing was persisted
	assert.ErrorIs(t, err, boom)
	closings, err := m.ListClosings(ctx, generic.ClosingFilter{})
	require.NoError(t, err)
	assert.Empty(t, closings)

	// AND: The id sequence was rolled back too
	c, err := m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, Status: generic.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, generic.ClosingID(1), c.ID)
}

func TestMemory_WithTx_NestedCallsShareTheTransaction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)

	err := m.WithTx(ctx, func(outer generic.Store) error {
		return outer.WithTx(ctx, func(inner generic.Store) error {
			_, err := inner.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: generic.MustDate("2024-05-01")})
			return err
		})
	})
	require.NoError(t, err)

	closings, err := m.ListClosings(ctx, generic.ClosingFilter{AgentID: agent.ID})
	require.NoError(t, err)
	assert.Len(t, closings, 1)
}

func TestMemory_CreateClosing_UniquePerAgentDateShift(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)
	date := generic.MustDate("2024-05-01")

	_, err := m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, ShiftID: 1})
	require.NoError(t, err)

	_, err = m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, ShiftID: 1})
	assert.True(t, generic.IsConflict(err))

	_, err = m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, ShiftID: 2})
	assert.NoError(t, err, "another shift on the same day")

	_, err = m.CreateClosing(ctx, generic.Closing{AgentID: 42, Date: date})
	assert.True(t, generic.IsNotFound(err))
}

func TestMemory_LatestClosing_RespectsBefore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)
	date := generic.MustDate("2024-05-01")

	var ids []generic.ClosingID
	for shift := generic.ShiftID(1); shift <= 3; shift++ {
		c, err := m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date, ShiftID: shift})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: date.AddDays(1)})
	require.NoError(t, err)

	latest, err := m.LatestClosing(ctx, agent.ID, date, 0)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)

	prior, err := m.LatestClosing(ctx, agent.ID, date, ids[2])
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, ids[1], prior.ID)

	none, err := m.LatestClosing(ctx, agent.ID, date, ids[0])
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemory_LatestInitialBalance(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)

	initial, err := m.CreateTransactionType(ctx, generic.TransactionType{Name: "Initial balance", Kind: generic.KindInitialBalance})
	require.NoError(t, err)
	sales, err := m.CreateTransactionType(ctx, generic.TransactionType{Name: "Sales", Kind: generic.KindRegular})
	require.NoError(t, err)

	morning := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	post := func(typeID generic.TransactionTypeID, value string, at time.Time) generic.Transaction {
		tx, err := m.AppendTransaction(ctx, generic.Transaction{AgentID: agent.ID, TypeID: typeID, Value: generic.MustAmount(value), Active: true, OccurredAt: at})
		require.NoError(t, err)
		return tx
	}
	first := post(initial.ID, "1000", morning)
	second := post(initial.ID, "1200", morning.Add(time.Hour))
	post(sales.ID, "50", morning.Add(2*time.Hour))

	got, err := m.LatestInitialBalance(ctx, agent.ID, morning.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	// Deactivated records never seed an opening.
	require.NoError(t, m.DeactivateTransaction(ctx, second.ID))
	got, err = m.LatestInitialBalance(ctx, agent.ID, morning.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	got, err = m.LatestInitialBalance(ctx, agent.ID, morning)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_ReplaceRules_ScopesAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"Sales", "Withdrawal"} {
		_, err := m.CreateTransactionType(ctx, generic.TransactionType{Name: name, Kind: generic.KindRegular})
		require.NoError(t, err)
	}

	err := m.ReplaceRules(ctx, generic.GlobalScope, []generic.FormulaRule{{TypeID: 9, Include: true, Multiplier: generic.Plus}})
	assert.True(t, generic.IsNotFound(err), "unknown transaction type")

	require.NoError(t, m.ReplaceRules(ctx, generic.GlobalScope, []generic.FormulaRule{
		{TypeID: 2, Include: true, Multiplier: generic.Minus},
		{TypeID: 1, Include: true, Multiplier: generic.Plus},
	}))
	require.NoError(t, m.ReplaceRules(ctx, 5, []generic.FormulaRule{
		{TypeID: 1, Include: false, Multiplier: generic.Plus},
	}))

	global, err := m.ListRules(ctx, generic.GlobalScope)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, generic.TransactionTypeID(1), global[0].TypeID)

	// Replacing a scope drops its previous rules.
	require.NoError(t, m.ReplaceRules(ctx, generic.GlobalScope, nil))
	global, err = m.ListRules(ctx, generic.GlobalScope)
	require.NoError(t, err)
	assert.Empty(t, global)

	scoped, err := m.ListRules(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, scoped, 1)
}

func TestMemory_DeleteClosing_RemovesAdjustments(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	agent := seedAgent(t, m)

	c, err := m.CreateClosing(ctx, generic.Closing{AgentID: agent.ID, Date: generic.MustDate("2024-05-01")})
	require.NoError(t, err)
	for _, reason := range []string{"miscount", "late refund"} {
		_, err := m.AppendAdjustment(ctx, generic.Adjustment{ClosingID: c.ID, Reason: reason, Delta: generic.MustAmount("1")})
		require.NoError(t, err)
	}

	adjustments, err := m.ListAdjustments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 2)
	assert.Equal(t, "miscount", adjustments[0].Reason)

	require.NoError(t, m.DeleteClosing(ctx, c.ID))
	adjustments, err = m.ListAdjustments(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, adjustments)

	_, err = m.GetClosing(ctx, c.ID)
	assert.True(t, generic.IsNotFound(err))
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAgent(t, m)

	require.NoError(t, m.Reset(ctx))

	agents, err := m.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)

	// Names are free again after a reset.
	seedAgent(t, m)
}
