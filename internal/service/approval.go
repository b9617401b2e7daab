package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/port/broadcast"
	"github.com/optifleet/optifleet/internal/port/database"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
)

// SystemApprover is recorded as the decider on auto-approved requests.
const SystemApprover = "system:auto-approve"

// ApprovalService gates risky recommendations behind human decisions. Low
// risk auto-approves; everything else opens a time-boxed pending request.
// Expiry is evaluated lazily whenever a request is read; there is no
// background sweeper.
type ApprovalService struct {
	store    database.Store
	policy   *approval.Policy
	executor *ExecutorService
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	now      func() time.Time // for testing
}

// NewApprovalService creates an ApprovalService with all dependencies.
func NewApprovalService(
	store database.Store,
	policy *approval.Policy,
	executor *ExecutorService,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
) *ApprovalService {
	return &ApprovalService{
		store:    store,
		policy:   policy,
		executor: executor,
		queue:    queue,
		hub:      hub,
		now:      time.Now,
	}
}

// Classify returns the risk decision for a recommendation without side effects.
func (s *ApprovalService) Classify(rec *recommendation.Recommendation) approval.Decision {
	return s.policy.Classify(rec)
}

// RequestApproval creates the gate for one kept recommendation. When
// autoApprove is set and the risk level permits, the request is created
// already in the approved terminal state and the plan is built immediately.
// Otherwise a pending request with a risk-dependent expiry window is opened.
func (s *ApprovalService) RequestApproval(ctx context.Context, rec *recommendation.Recommendation, autoApprove bool) (*approval.Request, error) {
	decision := s.policy.Classify(rec)
	now := s.now().UTC()

	req := &approval.Request{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		TenantID:         rec.TenantID,
		Risk:             rec.Risk,
		RequestedBy:      rec.AgentID,
		CreatedAt:        now,
	}

	if autoApprove && decision.AutoApprove {
		req.Status = approval.StatusApproved
		req.DecidedBy = SystemApprover
		req.DecidedAt = now
	} else {
		// Risk levels that normally auto-approve have no window of their own;
		// when the batch opts out of auto-approval they wait a full day.
		window := decision.Window
		if window == 0 {
			window = 24 * time.Hour
		}
		req.Status = approval.StatusPending
		req.ExpiresAt = now.Add(window)
	}

	if err := s.store.CreateApproval(ctx, req); err != nil {
		return nil, err
	}

	if req.Status == approval.StatusApproved {
		if err := s.onApproved(ctx, req); err != nil {
			return nil, err
		}
		slog.Info("recommendation auto-approved",
			"approval_id", req.ID,
			"recommendation_id", rec.ID,
			"tenant_id", rec.TenantID,
			"risk", rec.Risk,
		)
		return req, nil
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, req.TenantID, broadcast.EventApprovalPending, req)
	}
	slog.Info("approval requested",
		"approval_id", req.ID,
		"recommendation_id", rec.ID,
		"tenant_id", rec.TenantID,
		"risk", rec.Risk,
		"expires_at", req.ExpiresAt,
	)
	return req, nil
}

// Approve transitions a pending request to approved, marks the
// recommendation approved, and creates its execution plan. Fails with
// domain.ErrInvalidTransition if the request is no longer pending, including
// when it has lapsed past its expiry window.
func (s *ApprovalService) Approve(ctx context.Context, approvalID, approverID string) (*approval.Request, error) {
	if err := s.lazyExpire(ctx, approvalID); err != nil {
		return nil, err
	}

	req, err := s.store.DecideApproval(ctx, approvalID, approval.StatusApproved, approverID, "")
	if err != nil {
		return nil, err
	}

	if err := s.onApproved(ctx, req); err != nil {
		return nil, err
	}

	s.publishDecision(ctx, req)
	slog.Info("approval granted",
		"approval_id", req.ID,
		"recommendation_id", req.RecommendationID,
		"tenant_id", req.TenantID,
		"approver", approverID,
	)
	return req, nil
}

// Reject transitions a pending request to rejected and discards the
// recommendation, retaining the reason for audit.
func (s *ApprovalService) Reject(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	if err := s.lazyExpire(ctx, approvalID); err != nil {
		return nil, err
	}

	req, err := s.store.DecideApproval(ctx, approvalID, approval.StatusRejected, approverID, reason)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateRecommendationStatus(ctx, req.RecommendationID, recommendation.StatusRejected); err != nil {
		return nil, err
	}

	s.publishDecision(ctx, req)
	slog.Info("approval rejected",
		"approval_id", req.ID,
		"recommendation_id", req.RecommendationID,
		"tenant_id", req.TenantID,
		"approver", approverID,
		"reason", reason,
	)
	return req, nil
}

// Get returns one request, folding in lazy expiry.
func (s *ApprovalService) Get(ctx context.Context, approvalID string) (*approval.Request, error) {
	req, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if req.ExpiredAt(s.now()) {
		if err := s.store.ExpireApproval(ctx, approvalID); err != nil {
			return nil, err
		}
		req.Status = approval.StatusExpired
	}
	return req, nil
}

// List returns the tenant's requests, optionally filtered by status. Pending
// requests past their window are expired on the way out, so a reader always
// observes expired rather than stale pending.
func (s *ApprovalService) List(ctx context.Context, status approval.Status) ([]approval.Request, error) {
	// Query unfiltered when asking for pending or expired: lazy expiry can
	// move requests between those two sets.
	queryStatus := status
	if status == approval.StatusPending || status == approval.StatusExpired {
		queryStatus = ""
	}

	reqs, err := s.store.ListApprovals(ctx, queryStatus)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := reqs[:0]
	for i := range reqs {
		req := reqs[i]
		if req.ExpiredAt(now) {
			if err := s.store.ExpireApproval(ctx, req.ID); err != nil {
				return nil, err
			}
			req.Status = approval.StatusExpired
		}
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

// lazyExpire expires a lapsed pending request before a decision is attempted,
// so approving after the window fails with an invalid transition.
func (s *ApprovalService) lazyExpire(ctx context.Context, approvalID string) error {
	req, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if req.ExpiredAt(s.now()) {
		if err := s.store.ExpireApproval(ctx, approvalID); err != nil {
			return err
		}
	}
	return nil
}

// onApproved runs the approval side effects: recommendation status and plan
// creation. Called for both human and auto approvals.
func (s *ApprovalService) onApproved(ctx context.Context, req *approval.Request) error {
	if err := s.store.UpdateRecommendationStatus(ctx, req.RecommendationID, recommendation.StatusApproved); err != nil {
		return err
	}

	rec, err := s.store.GetRecommendation(ctx, req.RecommendationID)
	if err != nil {
		return err
	}

	// The plan may already exist if approval raced plan creation elsewhere;
	// one plan per recommendation is enforced by the store.
	if _, err := s.store.GetPlanByRecommendation(ctx, req.RecommendationID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if _, err := s.executor.CreatePlan(ctx, rec); err != nil {
		return fmt.Errorf("create plan for approved recommendation %s: %w", rec.ID, err)
	}
	return nil
}

func (s *ApprovalService) publishDecision(ctx context.Context, req *approval.Request) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, req.TenantID, broadcast.EventApprovalDecided, req)
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectApprovalDecided, data); err != nil {
		slog.Warn("publish approval decision", "approval_id", req.ID, "error", err)
	}
}
