// Package conflict implements conflict detection and deterministic resolution
// over one tenant's batch of recommendations.
package conflict

import "time"

// Type identifies the kind of incompatibility between recommendations.
type Type string

const (
	TypeResourceOverlap     Type = "resource-overlap"
	TypeContradictoryAction Type = "contradictory-action"
	TypeDependencyCycle     Type = "dependency-cycle"
)

// Severity grades how serious a conflict is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict records a detected relationship between two or more recommendations.
// It is created during detection, resolved synchronously within the same batch,
// and never mutated afterward.
type Conflict struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	BatchID           string    `json:"batch_id,omitempty"`
	Type              Type      `json:"type"`
	RecommendationIDs []string  `json:"recommendation_ids"`
	Description       string    `json:"description"`
	Severity          Severity  `json:"severity"`
	Resolved          bool      `json:"resolved"`
	Resolution        string    `json:"resolution,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
