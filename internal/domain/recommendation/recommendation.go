// Package recommendation defines the Recommendation domain entity: a single
// proposed infrastructure change submitted by an optimization agent.
package recommendation

import "time"

// AgentType identifies the specialization of the agent that produced a recommendation.
type AgentType string

const (
	AgentCost        AgentType = "cost"
	AgentPerformance AgentType = "performance"
	AgentResource    AgentType = "resource"
	AgentApplication AgentType = "application"
)

// Risk classifies how dangerous it is to act on a recommendation.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Rank returns a numeric ordering for risk levels, lower meaning safer.
func (r Risk) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 3
}

// Valid reports whether r is one of the known risk levels.
func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Status represents the lifecycle state of a recommendation.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusKept      Status = "kept"
	StatusDiscarded Status = "discarded"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Recommendation is a proposed change against a set of infrastructure resources.
// Immutable once created except for Status.
type Recommendation struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AgentID     string    `json:"agent_id"`
	AgentType   AgentType `json:"agent_type"`
	Action      string    `json:"action"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ResourceIDs []string  `json:"resource_ids"`
	// DependsOn lists resource ids whose state must be produced by another
	// recommendation before this one can run. Used for cycle detection.
	DependsOn        []string  `json:"depends_on,omitempty"`
	Risk             Risk      `json:"risk"`
	Priority         int       `json:"priority"`
	EstimatedSavings float64   `json:"estimated_savings"`
	Confidence       float64   `json:"confidence"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Touches reports whether the recommendation affects the given resource.
func (r *Recommendation) Touches(resourceID string) bool {
	for _, id := range r.ResourceIDs {
		if id == resourceID {
			return true
		}
	}
	return false
}

// OverlappingResources returns the resource ids affected by both a and b.
// Order follows a's declaration order.
func OverlappingResources(a, b *Recommendation) []string {
	inB := make(map[string]bool, len(b.ResourceIDs))
	for _, id := range b.ResourceIDs {
		inB[id] = true
	}
	var overlap []string
	for _, id := range a.ResourceIDs {
		if inB[id] {
			overlap = append(overlap, id)
		}
	}
	return overlap
}
