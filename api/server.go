/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique id per request for tracing
  2. Logger:     request logging
  3. Recoverer:  panic recovery (500 instead of crash)
  4. CORS:       cross-origin requests for the frontend

ROUTE GROUPS:
  /api/requests/*     request lifecycle and approval actions
  /api/cache/*        refresh trigger, progress, staleness status
  /api/accounts/*     mirrored account directory, warehouse opportunities
  /api/employees/*    directory search (admin)
  /api/impersonate*   impersonation control (admin)
  /api/budgets        warehouse budget reads

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Identity
		r.Get("/user", h.GetCurrentUser)
		r.Post("/impersonate", h.Impersonate)
		r.Post("/stop-impersonate", h.StopImpersonate)
		r.Get("/impersonate/status", h.ImpersonateStatus)
		r.Get("/employees/search", h.SearchEmployees)

		// Requests
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}", h.UpdateRequest)
			r.Delete("/{id}", h.DeleteRequest)
			r.Get("/{id}/steps", h.GetRequestSteps)

			r.Post("/{id}/submit", h.SubmitRequest)
			r.Post("/{id}/withdraw", h.WithdrawRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/deny", h.DenyRequest)
			r.Post("/{id}/send-back", h.SendBackRequest)
			r.Post("/{id}/revise", h.ReviseRequest)

			r.Get("/{id}/opportunities", h.ListLinkedOpportunities)
			r.Post("/{id}/opportunities", h.LinkOpportunity)
			r.Delete("/{id}/opportunities/{oppID}", h.UnlinkOpportunity)
		})

		r.Get("/approval-chain", h.GetApprovalChain)

		// Cache coherence
		r.Route("/cache", func(r chi.Router) {
			r.Post("/refresh", h.TriggerRefresh)
			r.Get("/progress", h.GetRefreshProgress)
			r.Get("/status", h.GetCacheStatus)
		})

		// Directory and lookups
		r.Get("/accounts/search", h.SearchAccounts)
		r.Get("/accounts/{accountID}/opportunities", h.ListOpportunities)
		r.Get("/lookup/theaters-industries", h.GetTheatersIndustries)
		r.Get("/summary", h.GetSummary)

		// Warehouse-only reads
		r.Get("/budgets", h.ListBudgets)
	})

	return r
}
