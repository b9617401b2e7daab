package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/coordination"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/middleware"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
	"github.com/optifleet/optifleet/internal/resilience"
)

type coordinatorFixture struct {
	store   *mockStore
	queue   *mockQueue
	invoker *mockInvoker
	svc     *CoordinatorService
}

func newCoordinatorFixture() *coordinatorFixture {
	store := newMockStore()
	queue := newMockQueue()
	invoker := newMockInvoker()
	hub := &mockHub{}
	executor := NewExecutorService(
		store,
		invoker,
		plan.NewPlanner(plan.DefaultTemplates()),
		resilience.NewBreakerSet(100, time.Minute),
		nil,
		queue,
		hub,
		nil,
		testExecutorConfig(),
	)
	approvals := NewApprovalService(store, approval.DefaultPolicy(), executor, queue, hub)
	svc := NewCoordinatorService(store, conflict.NewDetector(conflict.DefaultOpposites()), approvals, executor, queue, nil, testExecutorConfig())
	return &coordinatorFixture{store: store, queue: queue, invoker: invoker, svc: svc}
}

func batchRec(id, action string, priority int, resources ...string) recommendation.Recommendation {
	return recommendation.Recommendation{
		ID:          id,
		TenantID:    "t1",
		AgentID:     "agent-1",
		AgentType:   recommendation.AgentCost,
		Action:      action,
		ResourceIDs: resources,
		Risk:        recommendation.RiskLow,
		Priority:    priority,
		Confidence:  0.9,
	}
}

func TestCoordinateRejectsInvalidBatch(t *testing.T) {
	f := newCoordinatorFixture()

	bad := batchRec("r1", "scale_up", 1, "svc-1")
	bad.Confidence = 2.0

	_, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{batchRec("r0", "scale_up", 1, "svc-0"), bad},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.store.batches) != 0 {
		t.Fatal("an invalid batch must not be persisted")
	}
}

func TestCoordinateResolvesAndAutoApproves(t *testing.T) {
	f := newCoordinatorFixture()

	winner := batchRec("winner", "rightsize_instance", 5, "vm-1")
	loser := batchRec("loser", "terminate_idle", 1, "vm-1")
	independent := batchRec("solo", "scale_up", 1, "svc-1")

	result, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{winner, loser, independent},
		AutoApprove:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Submitted != 3 || len(result.Conflicts) != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Kept) != 2 || len(result.Discarded) != 1 {
		t.Fatalf("expected 2 kept 1 discarded, got %d/%d", len(result.Kept), len(result.Discarded))
	}
	if result.Discarded[0].ID != "loser" {
		t.Fatalf("expected loser discarded, got %s", result.Discarded[0].ID)
	}
	if result.AutoApproved != 2 || result.PendingApproval != 0 {
		t.Fatalf("expected both survivors auto-approved, got %+v", result)
	}

	stored, _ := f.store.GetRecommendation(context.Background(), "loser")
	if stored.Status != recommendation.StatusDiscarded {
		t.Fatalf("expected discarded persisted, got %s", stored.Status)
	}
	kept, _ := f.store.GetRecommendation(context.Background(), "winner")
	if kept.Status != recommendation.StatusApproved {
		t.Fatalf("expected approved after the gate, got %s", kept.Status)
	}

	// The survivors own plans; the discarded one does not.
	if _, err := f.store.GetPlanByRecommendation(context.Background(), "winner"); err != nil {
		t.Fatalf("expected plan for winner: %v", err)
	}
	if _, err := f.store.GetPlanByRecommendation(context.Background(), "loser"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("discarded recommendation must never reach planning")
	}

	if f.queue.count(messagequeue.SubjectCoordinationDone) != 1 {
		t.Fatal("expected coordination result published")
	}
}

func TestCoordinateConflictAuditPersisted(t *testing.T) {
	f := newCoordinatorFixture()

	result, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID: "t1",
		Recommendations: []recommendation.Recommendation{
			batchRec("a", "scale_up", 2, "svc-1"),
			batchRec("b", "scale_down", 1, "svc-1"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := f.svc.ListConflicts(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected overlap and contradiction persisted, got %d", len(stored))
	}
	for _, c := range stored {
		if !c.Resolved || c.Resolution == "" {
			t.Fatalf("conflict persisted unresolved: %+v", c)
		}
		if c.BatchID != result.BatchID {
			t.Fatalf("conflict not linked to batch: %+v", c)
		}
	}
}

func TestCoordinateExecuteNow(t *testing.T) {
	f := newCoordinatorFixture()

	result, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{batchRec("r1", "scale_up", 1, "svc-1")},
		AutoApprove:     true,
		ExecuteNow:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Executed) != 1 {
		t.Fatalf("expected 1 executed plan, got %d", len(result.Executed))
	}
	outcome := result.Executed[0]
	if outcome.Status != plan.StatusCompleted || outcome.Error != "" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	p, _ := f.store.GetPlanByRecommendation(context.Background(), "r1")
	if p.Status != plan.StatusCompleted {
		t.Fatalf("expected plan completed, got %s", p.Status)
	}
}

func TestCoordinatePendingApprovalNotExecuted(t *testing.T) {
	f := newCoordinatorFixture()

	risky := batchRec("r1", "migrate_to_spot", 1, "vm-1")
	risky.Risk = recommendation.RiskHigh

	result, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{risky},
		AutoApprove:     true,
		ExecuteNow:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PendingApproval != 1 || result.AutoApproved != 0 {
		t.Fatalf("high risk must pend, got %+v", result)
	}
	if len(result.Executed) != 0 {
		t.Fatal("nothing approved, nothing executed")
	}
	if calls := f.invoker.calledActions(); len(calls) != 0 {
		t.Fatalf("no handler may run before approval, got %v", calls)
	}
}

func TestCoordinateExecuteNowSurfacesPlanFailure(t *testing.T) {
	f := newCoordinatorFixture()
	f.invoker.fail["migrate_workload"] = errors.New("spot capacity unavailable")

	result, err := f.svc.Coordinate(context.Background(), coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{batchRec("r1", "migrate_to_spot", 1, "vm-1")},
		AutoApprove:     true,
		ExecuteNow:      true,
	})
	if err == nil {
		t.Fatal("expected execution failure surfaced")
	}
	if result == nil {
		t.Fatal("result must still describe the batch")
	}
	if len(result.Executed) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Executed))
	}
	outcome := result.Executed[0]
	if outcome.Status != plan.StatusRolledBack {
		t.Fatalf("expected rolled_back outcome, got %s", outcome.Status)
	}
	if outcome.Error == "" {
		t.Fatal("expected outcome error recorded")
	}
}

func TestIngestFeedsCoordinator(t *testing.T) {
	f := newCoordinatorFixture()
	ingest := NewIngestService(f.svc, f.queue)

	cancel, err := ingest.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cancel()

	data, _ := json.Marshal(coordination.Request{
		TenantID:        "t1",
		Recommendations: []recommendation.Recommendation{batchRec("r1", "scale_up", 1, "svc-1")},
		AutoApprove:     true,
	})
	ctx := middleware.WithTenantID(context.Background(), "t1")
	if err := f.queue.deliver(ctx, messagequeue.SubjectRecsSubmitted, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.store.batches) != 1 {
		t.Fatal("expected the queued batch coordinated")
	}
	if f.queue.count(messagequeue.SubjectCoordinationDone) != 1 {
		t.Fatal("expected result published for the queued batch")
	}
}

func TestIngestSwallowsMalformedMessage(t *testing.T) {
	f := newCoordinatorFixture()
	ingest := NewIngestService(f.svc, f.queue)

	cancel, err := ingest.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cancel()

	if err := f.queue.deliver(context.Background(), messagequeue.SubjectRecsSubmitted, []byte("{not json")); err != nil {
		t.Fatalf("malformed messages must be dropped, not redelivered: %v", err)
	}
	if len(f.store.batches) != 0 {
		t.Fatal("malformed message must not create a batch")
	}
}
