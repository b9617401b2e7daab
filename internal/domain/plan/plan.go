// Package plan defines the ExecutionPlan domain entity: the ordered,
// rollback-annotated step sequence realizing one approved recommendation.
package plan

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of an execution plan.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// IsTerminal returns true if the plan is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of an individual step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusRunning    StepStatus = "running"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusRolledBack StepStatus = "rolled_back"
)

// ExecutionPlan is owned by exactly one recommendation for its lifetime.
type ExecutionPlan struct {
	ID               string        `json:"id"`
	RecommendationID string        `json:"recommendation_id"`
	TenantID         string        `json:"tenant_id"`
	Action           string        `json:"action"`
	ResourceIDs      []string      `json:"resource_ids"`
	Status           Status        `json:"status"`
	Steps            []Step        `json:"steps"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Step is one unit of work in an execution plan. Critical steps trigger
// rollback on failure; reversible steps can be undone during rollback.
type Step struct {
	ID         string          `json:"id"`
	PlanID     string          `json:"plan_id"`
	Index      int             `json:"index"`
	Action     string          `json:"action"`
	Critical   bool            `json:"critical"`
	Reversible bool            `json:"reversible"`
	Status     StepStatus      `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}
