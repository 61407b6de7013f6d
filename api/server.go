/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /health                   Liveness
  /metrics                  Prometheus (when Metrics is set)
  /api/agent-types/*        Agent types
  /api/agents/*             Agents, period result, opening balance
  /api/transaction-types/*  Transaction types
  /api/transactions/*       Transaction ledger
  /api/formula-rules/*      Formula rules per scope
  /api/closings/*           Closings and adjustments
  /api/shifts/*             Shift clock
  /api/scenarios/*          Demo scenarios

SECURITY NOTE:
  No authentication middleware. Put the service behind a gateway that
  authenticates back-office users.

SEE ALSO:
  - handlers.go, closings.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/agent-types", func(r chi.Router) {
			r.Get("/", h.ListAgentTypes)
			r.Post("/", h.CreateAgentType)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}", h.GetAgent)
			r.Get("/{id}/period-result", h.GetPeriodResult)
			r.Get("/{id}/opening-balance", h.GetOpeningBalance)
		})

		r.Route("/transaction-types", func(r chi.Router) {
			r.Get("/", h.ListTransactionTypes)
			r.Post("/", h.CreateTransactionType)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.PostTransaction)
			r.Delete("/{id}", h.DeactivateTransaction)
		})

		r.Route("/formula-rules", func(r chi.Router) {
			r.Get("/{scope}", h.ListFormulaRules)
			r.Put("/{scope}", h.ReplaceFormulaRules)
		})

		r.Route("/closings", func(r chi.Router) {
			r.Get("/", h.ListClosings)
			r.Post("/", h.CreateClosing)
			r.Get("/{id}", h.GetClosing)
			r.Patch("/{id}", h.UpdateClosing)
			r.Delete("/{id}", h.DeleteClosing)
			r.Post("/{id}/finalize", h.FinalizeClosing)
			r.Get("/{id}/adjustments", h.ListAdjustments)
			r.Post("/{id}/adjustments", h.RecordAdjustment)
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.Post("/", h.CreateShift)
			r.Get("/current", h.CurrentShift)
			r.Post("/{id}/clock-in", h.ClockIn)
			r.Post("/{id}/clock-out", h.ClockOut)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetStore)
		})
	})

	return r
}
