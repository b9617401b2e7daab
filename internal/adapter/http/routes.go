package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Coordination
		r.Post("/coordinate", h.Coordinate)
		r.Get("/conflicts", h.ListConflicts)

		// Approvals
		r.Get("/approvals", h.ListApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/approve", h.ApproveApproval)
		r.Post("/approvals/{id}/reject", h.RejectApproval)

		// Execution plans
		r.Get("/plans/{id}", h.GetPlan)
		r.Post("/plans/{id}/execute", h.ExecutePlan)
	})
}
