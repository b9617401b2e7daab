package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/optifleet/optifleet/internal/adapter/otel"
	"github.com/optifleet/optifleet/internal/config"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/coordination"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/port/database"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
)

// CoordinatorService is the facade running the full pipeline for one tenant's
// batch: validate, detect, resolve, gate, and optionally execute. Each call
// runs on its own goroutine with no mutable state shared across tenants; the
// approval store is the only structure touched from outside the call path.
type CoordinatorService struct {
	store     database.Store
	detector  *conflict.Detector
	approvals *ApprovalService
	executor  *ExecutorService
	queue     messagequeue.Queue
	metrics   *otel.Metrics
	execCfg   config.Executor
}

// NewCoordinatorService creates a CoordinatorService with all dependencies.
func NewCoordinatorService(
	store database.Store,
	detector *conflict.Detector,
	approvals *ApprovalService,
	executor *ExecutorService,
	queue messagequeue.Queue,
	metrics *otel.Metrics,
	execCfg config.Executor,
) *CoordinatorService {
	return &CoordinatorService{
		store:     store,
		detector:  detector,
		approvals: approvals,
		executor:  executor,
		queue:     queue,
		metrics:   metrics,
		execCfg:   execCfg,
	}
}

// Coordinate runs the pipeline over one batch. Stage order is deliberate:
// conflicts are resolved before any approval is opened, so a human is never
// asked to approve a recommendation that resolution would discard.
//
// When ExecuteNow is set, approved plans run before returning; distinct plans
// may run concurrently because resolution already guarantees no two survivors
// touch overlapping resources. Execution errors are recorded on the plans and
// joined into the returned error.
func (s *CoordinatorService) Coordinate(ctx context.Context, req coordination.Request) (*coordination.Result, error) {
	ctx, span := otel.StartSpan(ctx, "coordinate", req.TenantID)
	defer span.End()
	start := time.Now()

	// Stage 1: validation. Any bad recommendation fails the whole call
	// before detection runs.
	for i := range req.Recommendations {
		if err := req.Recommendations[i].Validate(req.TenantID); err != nil {
			return nil, err
		}
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	for i := range req.Recommendations {
		r := &req.Recommendations[i]
		r.Status = recommendation.StatusProposed
		r.CreatedAt = now
		r.UpdatedAt = now
	}

	if err := s.store.CreateBatch(ctx, batchID, len(req.Recommendations)); err != nil {
		return nil, err
	}
	if err := s.store.CreateRecommendations(ctx, batchID, req.Recommendations); err != nil {
		return nil, err
	}

	// Stages 2+3: detect and resolve.
	conflicts := s.detector.Detect(req.Recommendations)
	resolution := conflict.Resolve(req.Recommendations, conflicts)

	for i := range resolution.Conflicts {
		resolution.Conflicts[i].BatchID = batchID
	}
	if err := s.store.CreateConflicts(ctx, batchID, resolution.Conflicts); err != nil {
		return nil, err
	}
	for i := range resolution.Kept {
		if err := s.store.UpdateRecommendationStatus(ctx, resolution.Kept[i].ID, recommendation.StatusKept); err != nil {
			return nil, err
		}
	}
	for i := range resolution.Discarded {
		if err := s.store.UpdateRecommendationStatus(ctx, resolution.Discarded[i].ID, recommendation.StatusDiscarded); err != nil {
			return nil, err
		}
	}

	result := &coordination.Result{
		BatchID:   batchID,
		TenantID:  req.TenantID,
		Submitted: len(req.Recommendations),
		Conflicts: resolution.Conflicts,
		Kept:      resolution.Kept,
		Discarded: resolution.Discarded,
	}

	// Stage 4: gate every survivor.
	var approvedRecs []recommendation.Recommendation
	for i := range resolution.Kept {
		rec := resolution.Kept[i]
		ar, err := s.approvals.RequestApproval(ctx, &rec, req.AutoApprove)
		if err != nil {
			return nil, err
		}
		result.Approvals = append(result.Approvals, *ar)
		if ar.Status == approval.StatusApproved {
			result.AutoApproved++
			approvedRecs = append(approvedRecs, rec)
		} else {
			result.PendingApproval++
		}
	}

	// Stage 5: optional inline execution of everything approved.
	var execErr error
	if req.ExecuteNow && len(approvedRecs) > 0 {
		result.Executed, execErr = s.executeApproved(ctx, approvedRecs)
	}

	result.CompletedAt = time.Now().UTC()
	s.recordMetrics(ctx, result, time.Since(start))
	s.publishResult(ctx, result)

	slog.Info("coordination completed",
		"batch_id", batchID,
		"tenant_id", req.TenantID,
		"submitted", result.Submitted,
		"conflicts", len(result.Conflicts),
		"kept", len(result.Kept),
		"auto_approved", result.AutoApproved,
		"pending_approval", result.PendingApproval,
		"executed", len(result.Executed),
		"duration", time.Since(start),
	)
	return result, execErr
}

// executeApproved runs the approved plans with bounded concurrency. Plan
// failures do not cancel sibling plans: each outcome is collected and the
// errors are joined afterward.
func (s *CoordinatorService) executeApproved(ctx context.Context, recs []recommendation.Recommendation) ([]coordination.PlanOutcome, error) {
	outcomes := make([]coordination.PlanOutcome, len(recs))
	var mu sync.Mutex
	var execErrs []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.execCfg.MaxConcurrentPlans)

	for i := range recs {
		g.Go(func() error {
			rec := &recs[i]
			outcome := coordination.PlanOutcome{RecommendationID: rec.ID}

			p, err := s.store.GetPlanByRecommendation(gctx, rec.ID)
			if err != nil {
				outcome.Status = plan.StatusFailed
				outcome.Error = err.Error()
				mu.Lock()
				execErrs = append(execErrs, err)
				mu.Unlock()
				outcomes[i] = outcome
				return nil
			}

			res, err := s.executor.Execute(gctx, p.ID)
			outcome.PlanID = p.ID
			outcome.Status = res.Status
			outcome.Duration = res.Duration
			if err != nil {
				outcome.Error = err.Error()
				mu.Lock()
				execErrs = append(execErrs, fmt.Errorf("plan %s: %w", p.ID, err))
				mu.Unlock()
			}
			outcomes[i] = outcome
			return nil
		})
	}

	_ = g.Wait()
	return outcomes, errors.Join(execErrs...)
}

// ListConflicts returns the persisted conflict audit trail for a batch.
func (s *CoordinatorService) ListConflicts(ctx context.Context, batchID string) ([]conflict.Conflict, error) {
	return s.store.ListConflictsByBatch(ctx, batchID)
}

func (s *CoordinatorService) recordMetrics(ctx context.Context, r *coordination.Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Coordinations.Add(ctx, 1)
	s.metrics.ConflictsDetected.Add(ctx, int64(len(r.Conflicts)))
	s.metrics.RecsDiscarded.Add(ctx, int64(len(r.Discarded)))
	s.metrics.ApprovalsAuto.Add(ctx, int64(r.AutoApproved))
	s.metrics.ApprovalsPending.Add(ctx, int64(r.PendingApproval))
	s.metrics.CoordinationLatency.Record(ctx, elapsed.Seconds())
}

func (s *CoordinatorService) publishResult(ctx context.Context, r *coordination.Result) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectCoordinationDone, data); err != nil {
		slog.Warn("publish coordination result", "batch_id", r.BatchID, "error", err)
	}
}
