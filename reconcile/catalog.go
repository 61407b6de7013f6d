package reconcile

import (
	"context"

	"github.com/warp/reconciliation-engine/generic"
)

// Catalog administers agent types, agents and transaction types.
type Catalog struct {
	store generic.Store
}

func (c *Catalog) CreateAgentType(ctx context.Context, t generic.AgentType) (generic.AgentType, error) {
	if err := t.Validate(); err != nil {
		return generic.AgentType{}, err
	}
	return c.store.CreateAgentType(ctx, t)
}

func (c *Catalog) GetAgentType(ctx context.Context, id generic.AgentTypeID) (generic.AgentType, error) {
	return c.store.GetAgentType(ctx, id)
}

func (c *Catalog) ListAgentTypes(ctx context.Context) ([]generic.AgentType, error) {
	return c.store.ListAgentTypes(ctx)
}

func (c *Catalog) CreateAgent(ctx context.Context, a generic.Agent) (generic.Agent, error) {
	if err := a.Validate(); err != nil {
		return generic.Agent{}, err
	}
	if _, err := c.store.GetAgentType(ctx, a.TypeID); err != nil {
		return generic.Agent{}, err
	}
	return c.store.CreateAgent(ctx, a)
}

func (c *Catalog) GetAgent(ctx context.Context, id generic.AgentID) (generic.Agent, error) {
	return c.store.GetAgent(ctx, id)
}

func (c *Catalog) ListAgents(ctx context.Context) ([]generic.Agent, error) {
	return c.store.ListAgents(ctx)
}

func (c *Catalog) CreateTransactionType(ctx context.Context, t generic.TransactionType) (generic.TransactionType, error) {
	if err := t.Validate(); err != nil {
		return generic.TransactionType{}, err
	}
	return c.store.CreateTransactionType(ctx, t)
}

func (c *Catalog) ListTransactionTypes(ctx context.Context) ([]generic.TransactionType, error) {
	return c.store.ListTransactionTypes(ctx)
}
