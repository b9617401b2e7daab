// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Store is the port interface for database operations. Every query is scoped
// to the tenant carried in ctx; implementations must never return another
// tenant's rows.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, batchID string, submitted int) error

	// Recommendations
	CreateRecommendations(ctx context.Context, batchID string, recs []recommendation.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, status recommendation.Status) error
	ListRecommendationsByBatch(ctx context.Context, batchID string) ([]recommendation.Recommendation, error)

	// Conflicts (append-only audit trail)
	CreateConflicts(ctx context.Context, batchID string, conflicts []conflict.Conflict) error
	ListConflictsByBatch(ctx context.Context, batchID string) ([]conflict.Conflict, error)

	// Approvals
	CreateApproval(ctx context.Context, req *approval.Request) error
	GetApproval(ctx context.Context, id string) (*approval.Request, error)
	ListApprovals(ctx context.Context, status approval.Status) ([]approval.Request, error)
	// DecideApproval atomically transitions a pending request to the given
	// terminal status. Returns domain.ErrInvalidTransition if the request is
	// no longer pending; this is the compare-and-swap that makes a race
	// between approve and reject resolve to exactly one winner.
	DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy, reason string) (*approval.Request, error)
	// ExpireApproval transitions a pending request past its expiry timestamp
	// to expired. A no-op if the request was decided in the meantime.
	ExpireApproval(ctx context.Context, id string) error

	// Execution plans
	CreatePlan(ctx context.Context, p *plan.ExecutionPlan) error
	GetPlan(ctx context.Context, id string) (*plan.ExecutionPlan, error)
	GetPlanByRecommendation(ctx context.Context, recommendationID string) (*plan.ExecutionPlan, error)
	UpdatePlan(ctx context.Context, p *plan.ExecutionPlan) error
	UpdateStep(ctx context.Context, st *plan.Step) error
}
