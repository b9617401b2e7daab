package http

import (
	"net/http"

	"github.com/optifleet/optifleet/internal/adapter/ws"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/coordination"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/middleware"
	"github.com/optifleet/optifleet/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Coordinator *service.CoordinatorService
	Approvals   *service.ApprovalService
	Executor    *service.ExecutorService
	Hub         *ws.Hub
}

type coordinateRequest struct {
	Recommendations []recommendation.Recommendation `json:"recommendations"`
	AutoApprove     bool                            `json:"auto_approve"`
	ExecuteNow      bool                            `json:"execute_now"`
}

// Coordinate runs the full pipeline over one submitted batch.
func (h *Handlers) Coordinate(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[coordinateRequest](w, r)
	if !ok {
		return
	}
	if len(body.Recommendations) == 0 {
		writeError(w, http.StatusBadRequest, "recommendations are required")
		return
	}

	result, err := h.Coordinator.Coordinate(r.Context(), coordination.Request{
		TenantID:        middleware.TenantIDFromContext(r.Context()),
		Recommendations: body.Recommendations,
		AutoApprove:     body.AutoApprove,
		ExecuteNow:      body.ExecuteNow,
	})
	if err != nil && result == nil {
		writeDomainError(w, err, "batch not found")
		return
	}
	// Inline execution failures are reported per plan inside the result.
	writeJSON(w, http.StatusOK, result)
}

// ListConflicts returns the conflict audit trail for one batch.
func (h *Handlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	batchID := r.URL.Query().Get("batch")
	if !requireField(w, batchID, "batch") {
		return
	}

	conflicts, err := h.Coordinator.ListConflicts(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// ListApprovals returns the tenant's approval requests, optionally filtered
// by ?status=.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	status := approval.Status(r.URL.Query().Get("status"))
	switch status {
	case "", approval.StatusPending, approval.StatusApproved, approval.StatusRejected, approval.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "unknown approval status")
		return
	}

	reqs, err := h.Approvals.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err, "approvals not found")
		return
	}
	if reqs == nil {
		reqs = []approval.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// GetApproval returns one approval request.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason"`
}

// ApproveApproval grants a pending approval request.
func (h *Handlers) ApproveApproval(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.ApproverID, "approver_id") {
		return
	}

	req, err := h.Approvals.Approve(r.Context(), urlParam(r, "id"), body.ApproverID)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// RejectApproval rejects a pending approval request.
func (h *Handlers) RejectApproval(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.ApproverID, "approver_id") {
		return
	}

	req, err := h.Approvals.Reject(r.Context(), urlParam(r, "id"), body.ApproverID, body.Reason)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetPlan returns one execution plan with its steps.
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Executor.GetPlan(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ExecutePlan runs a pending plan. Re-executing a finished plan returns the
// stored result without side effects.
func (h *Handlers) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	result, err := h.Executor.Execute(r.Context(), urlParam(r, "id"))
	if err != nil {
		// Step failures still produce a terminal plan worth reporting.
		if result.PlanID != "" {
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health reports liveness and the number of connected dashboards.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"ws_connections": h.Hub.ConnectionCount(),
	})
}
