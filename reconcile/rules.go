package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/reconciliation-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// FORMULA RULE ADMINISTRATION
// =============================================================================

// Rules administers formula rules. A scope is either GlobalScope or an
// agent type ID.
type Rules struct {
	store  generic.Store
	logger *zap.Logger
}

// List returns the rules stored for one scope.
func (r *Rules) List(ctx context.Context, scope generic.AgentTypeID) ([]generic.FormulaRule, error) {
	if err := r.checkScope(ctx, r.store, scope); err != nil {
		return nil, err
	}
	return r.store.ListRules(ctx, scope)
}

// Effective returns the merged rule set an agent of the given type uses.
func (r *Rules) Effective(ctx context.Context, agentType generic.AgentTypeID) (generic.RuleSet, error) {
	if err := r.checkScope(ctx, r.store, agentType); err != nil {
		return generic.RuleSet{}, err
	}
	return effectiveRules(ctx, r.store, agentType)
}

// BulkUpdate replaces every rule of the scope with rules, all or nothing.
// Rules with Include=false are stored so the row keeps the administrator's
// sign choice, but they never contribute; an out-of-range multiplier on an
// excluded rule is stored as +1.
func (r *Rules) BulkUpdate(ctx context.Context, scope generic.AgentTypeID, items []generic.FormulaRule) ([]generic.FormulaRule, error) {
	rules := make([]generic.FormulaRule, len(items))
	for i, item := range items {
		rules[i] = item.Normalized()
	}

	seen := make(map[generic.TransactionTypeID]bool, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			var ve *generic.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("rules[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		if seen[rule.TypeID] {
			return nil, &generic.ValidationError{
				Field:   fmt.Sprintf("rules[%d].transaction_type_id", i),
				Message: fmt.Sprintf("transaction type %d appears more than once", rule.TypeID),
			}
		}
		seen[rule.TypeID] = true
		rules[i].Scope = scope
	}

	var updated []generic.FormulaRule
	err := r.store.WithTx(ctx, func(s generic.Store) error {
		if err := r.checkScope(ctx, s, scope); err != nil {
			return err
		}
		for _, rule := range rules {
			if _, err := s.GetTransactionType(ctx, rule.TypeID); err != nil {
				return err
			}
		}
		if err := s.ReplaceRules(ctx, scope, rules); err != nil {
			return err
		}
		var err error
		updated, err = s.ListRules(ctx, scope)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("formula rules replaced",
		zap.Int64("scope", int64(scope)),
		zap.Int("rules", len(updated)))
	return updated, nil
}

func (r *Rules) checkScope(ctx context.Context, s generic.AgentStore, scope generic.AgentTypeID) error {
	if scope == generic.GlobalScope {
		return nil
	}
	if scope < 0 {
		return &generic.ValidationError{Field: "scope", Message: "scope must be 0 or an agent type id"}
	}
	_, err := s.GetAgentType(ctx, scope)
	return err
}
