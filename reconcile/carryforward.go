package reconcile

import (
	"context"

	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// CARRY-FORWARD RESOLVER
// =============================================================================

// Resolver determines the opening balance of a new closing.
//
// Resolution order:
//  1. Latest closing of the agent on the same day. The carried field depends
//     on the agent type's strategy: computed result (standard) or counted
//     balance (cash pool).
//  2. Latest active initial_balance transaction of the agent up to the end
//     of that day.
//  3. Zero.
//
// Resolution only reads, so calling it twice without an intervening closing
// write returns the same result.
type Resolver struct {
	store generic.Store
}

func (r *Resolver) ResolveOpeningBalance(ctx context.Context, agentID generic.AgentID, date generic.Date) (generic.OpeningBalance, error) {
	if date.IsZero() {
		return generic.OpeningBalance{}, &generic.ValidationError{Field: "date", Message: "date is required"}
	}
	ac, err := loadAgent(ctx, r.store, agentID)
	if err != nil {
		return generic.OpeningBalance{}, generic.WrapOp("resolve opening balance", agentID, date, err)
	}
	opening, err := resolveOpening(ctx, r.store, ac, date, 0)
	if err != nil {
		return generic.OpeningBalance{}, generic.WrapOp("resolve opening balance", agentID, date, err)
	}
	return opening, nil
}

// resolveOpening ignores closings with ID >= before when before is set, so a
// closing being recomputed never carries from itself or later closings.
func resolveOpening(ctx context.Context, s generic.Store, ac agentContext, date generic.Date, before generic.ClosingID) (generic.OpeningBalance, error) {
	prior, err := s.LatestClosing(ctx, ac.agent.ID, date, before)
	if err != nil {
		return generic.OpeningBalance{}, err
	}
	if prior != nil {
		return generic.OpeningBalance{
			Value:     prior.CarryValue(ac.agentType.CarryForward),
			Source:    generic.SourcePriorClosing,
			ClosingID: prior.ID,
		}, nil
	}

	initial, err := s.LatestInitialBalance(ctx, ac.agent.ID, date.End())
	if err != nil {
		return generic.OpeningBalance{}, err
	}
	if initial != nil {
		return generic.OpeningBalance{
			Value:         initial.Value,
			Source:        generic.SourceInitialTransaction,
			TransactionID: initial.ID,
		}, nil
	}

	return generic.OpeningBalance{Value: generic.ZeroAmount(), Source: generic.SourceZero}, nil
}
