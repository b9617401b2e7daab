// Package coordination defines the batch-level result types returned by the
// coordination pipeline.
package coordination

import (
	"time"

	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Request is one coordination call: a single tenant's batch of recommendations
// plus the gating/execution flags.
type Request struct {
	TenantID        string                            `json:"tenant_id"`
	Recommendations []recommendation.Recommendation   `json:"recommendations"`
	AutoApprove     bool                              `json:"auto_approve"`
	ExecuteNow      bool                              `json:"execute_now"`
}

// PlanOutcome summarizes one plan execution triggered inline by Coordinate.
type PlanOutcome struct {
	PlanID           string        `json:"plan_id"`
	RecommendationID string        `json:"recommendation_id"`
	Status           plan.Status   `json:"status"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Result aggregates everything one coordination batch produced.
type Result struct {
	BatchID           string                          `json:"batch_id"`
	TenantID          string                          `json:"tenant_id"`
	Submitted         int                             `json:"submitted"`
	Conflicts         []conflict.Conflict             `json:"conflicts"`
	Kept              []recommendation.Recommendation `json:"kept"`
	Discarded         []recommendation.Recommendation `json:"discarded"`
	Approvals         []approval.Request              `json:"approvals"`
	AutoApproved      int                             `json:"auto_approved"`
	PendingApproval   int                             `json:"pending_approval"`
	Executed          []PlanOutcome                   `json:"executed,omitempty"`
	CompletedAt       time.Time                       `json:"completed_at"`
}
