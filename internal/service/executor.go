package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/optifleet/optifleet/internal/adapter/otel"
	"github.com/optifleet/optifleet/internal/config"
	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/port/actionhandler"
	"github.com/optifleet/optifleet/internal/port/broadcast"
	"github.com/optifleet/optifleet/internal/port/cache"
	"github.com/optifleet/optifleet/internal/port/database"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
	"github.com/optifleet/optifleet/internal/resilience"
)

// terminalPlanTTL bounds how long finished plans stay in the L1 cache.
const terminalPlanTTL = time.Hour

// ExecutorService runs execution plans: strictly sequential steps, per-step
// timeouts, and reverse-order rollback when a critical step fails.
type ExecutorService struct {
	store    database.Store
	invoker  actionhandler.Invoker
	planner  *plan.Planner
	breakers *resilience.BreakerSet
	cache    cache.Cache
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	cfg      config.Executor
}

// NewExecutorService creates an ExecutorService with all dependencies.
func NewExecutorService(
	store database.Store,
	invoker actionhandler.Invoker,
	planner *plan.Planner,
	breakers *resilience.BreakerSet,
	planCache cache.Cache,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	cfg config.Executor,
) *ExecutorService {
	return &ExecutorService{
		store:    store,
		invoker:  invoker,
		planner:  planner,
		breakers: breakers,
		cache:    planCache,
		queue:    queue,
		hub:      hub,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// CreatePlan builds and persists the execution plan for an approved
// recommendation. A recommendation owns at most one plan for its lifetime.
func (s *ExecutorService) CreatePlan(ctx context.Context, rec *recommendation.Recommendation) (*plan.ExecutionPlan, error) {
	p := s.planner.Build(rec)
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}
	slog.Info("plan created",
		"plan_id", p.ID,
		"recommendation_id", rec.ID,
		"tenant_id", rec.TenantID,
		"action", p.Action,
		"steps", len(p.Steps),
	)
	return p, nil
}

// GetPlan retrieves a plan, serving terminal plans from the L1 cache since
// they are immutable.
func (s *ExecutorService) GetPlan(ctx context.Context, id string) (*plan.ExecutionPlan, error) {
	if s.cache != nil {
		if data, ok, _ := s.cache.Get(ctx, planCacheKey(id)); ok {
			var p plan.ExecutionPlan
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheIfTerminal(ctx, p)
	return p, nil
}

// Execute runs the plan's steps strictly in declared order. Re-invoking on an
// already-terminal plan is a no-op returning the stored result. A concurrent
// duplicate Execute loses the optimistic-lock race on the pending→running
// transition and returns domain.ErrConflict.
func (s *ExecutorService) Execute(ctx context.Context, planID string) (plan.ExecutionResult, error) {
	p, err := s.GetPlan(ctx, planID)
	if err != nil {
		return plan.ExecutionResult{}, err
	}

	if p.Status.IsTerminal() {
		return plan.ResultOf(p), nil
	}
	if p.Status != plan.StatusPending {
		return plan.ExecutionResult{}, fmt.Errorf("plan %s is %s, expected pending: %w",
			planID, p.Status, domain.ErrInvalidTransition)
	}

	p.Status = plan.StatusRunning
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return plan.ExecutionResult{}, err
	}
	_ = s.store.UpdateRecommendationStatus(ctx, p.RecommendationID, recommendation.StatusExecuting)
	s.publishPlanStatus(ctx, p)

	start := time.Now()
	execErr := s.runSteps(ctx, p)
	p.Duration = time.Since(start)

	switch {
	case execErr == nil:
		p.Status = plan.StatusCompleted
	default:
		// runSteps already set StatusFailed or StatusRolledBack.
		p.Error = execErr.Error()
	}

	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return plan.ExecutionResult{}, err
	}

	recStatus := recommendation.StatusCompleted
	if p.Status != plan.StatusCompleted {
		recStatus = recommendation.StatusFailed
	}
	_ = s.store.UpdateRecommendationStatus(ctx, p.RecommendationID, recStatus)

	s.cacheIfTerminal(ctx, p)
	s.publishPlanStatus(ctx, p)
	if s.metrics != nil {
		s.metrics.PlansExecuted.Add(ctx, 1)
		s.metrics.PlanDuration.Record(ctx, p.Duration.Seconds())
		if p.Status == plan.StatusRolledBack {
			s.metrics.PlansRolledBack.Add(ctx, 1)
		}
	}

	slog.Info("plan finished",
		"plan_id", p.ID,
		"tenant_id", p.TenantID,
		"status", p.Status,
		"duration", p.Duration,
	)
	return plan.ResultOf(p), execErr
}

// runSteps executes steps sequentially. On a critical step failure it stops
// forward execution, rolls back, sets the terminal plan status, and returns
// the original step error. Non-critical failures are recorded and skipped.
func (s *ExecutorService) runSteps(ctx context.Context, p *plan.ExecutionPlan) error {
	for i := range p.Steps {
		st := &p.Steps[i]
		st.Status = plan.StepStatusRunning
		_ = s.store.UpdateStep(ctx, st)

		stepStart := time.Now()
		result, err := s.invokeStep(ctx, p, st.Action)
		st.Duration = time.Since(stepStart)
		if err == nil {
			st.Status = plan.StepStatusCompleted
			st.Result = result
			_ = s.store.UpdateStep(ctx, st)
			continue
		}

		st.Status = plan.StepStatusFailed
		st.Error = err.Error()
		_ = s.store.UpdateStep(ctx, st)

		if !st.Critical {
			slog.Warn("non-critical step failed, continuing",
				"plan_id", p.ID,
				"step", st.Action,
				"index", st.Index,
				"error", err,
			)
			continue
		}

		slog.Error("critical step failed, rolling back",
			"plan_id", p.ID,
			"step", st.Action,
			"index", st.Index,
			"error", err,
		)
		switch rbErr := s.Rollback(ctx, p, i); {
		case errors.Is(rbErr, errNothingReversible):
			// Nothing was undoable; the plan is simply failed, not rolled back.
			p.Status = plan.StatusFailed
			return fmt.Errorf("step %q failed: %w", st.Action, err)
		case rbErr != nil:
			p.Status = plan.StatusFailed
			return fmt.Errorf("step %q failed: %v; rollback failed: %w", st.Action, err, rbErr)
		default:
			p.Status = plan.StatusRolledBack
			return fmt.Errorf("step %q failed: %w", st.Action, err)
		}
	}
	return nil
}

// invokeStep calls the action handler for one step, bounded by the configured
// per-step timeout and guarded by the per-action circuit breaker. A timeout
// is indistinguishable from any other step failure.
func (s *ExecutorService) invokeStep(ctx context.Context, p *plan.ExecutionPlan, action string) (json.RawMessage, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	var payload map[string]any
	err := s.breakers.Execute(action, func() error {
		var invokeErr error
		payload, invokeErr = s.invoker.Invoke(stepCtx, action, p.ResourceIDs, map[string]any{
			"plan_id":           p.ID,
			"recommendation_id": p.RecommendationID,
		})
		return invokeErr
	})
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal step result: %w", err)
	}
	return data, nil
}

// Rollback undoes prior steps in strictly decreasing index order, touching
// only steps with index < failedIndex that are both completed and reversible.
// A rollback step failure aborts the pass and is surfaced to the caller; the
// plan then terminates as failed and needs operator intervention.
func (s *ExecutorService) Rollback(ctx context.Context, p *plan.ExecutionPlan, failedIndex int) error {
	rolledBack := false
	for i := failedIndex - 1; i >= 0; i-- {
		st := &p.Steps[i]
		if st.Status != plan.StepStatusCompleted || !st.Reversible {
			continue
		}

		if _, err := s.invokeStep(ctx, p, actionhandler.RollbackPrefix+st.Action); err != nil {
			st.Error = err.Error()
			_ = s.store.UpdateStep(ctx, st)
			slog.Error("rollback step failed, manual intervention required",
				"plan_id", p.ID,
				"step", st.Action,
				"index", st.Index,
				"error", err,
			)
			return fmt.Errorf("rollback step %q: %w", st.Action, err)
		}

		st.Status = plan.StepStatusRolledBack
		_ = s.store.UpdateStep(ctx, st)
		rolledBack = true
	}

	if !rolledBack {
		return errNothingReversible
	}
	return nil
}

var errNothingReversible = errors.New("no completed reversible steps to roll back")

func (s *ExecutorService) cacheIfTerminal(ctx context.Context, p *plan.ExecutionPlan) {
	if s.cache == nil || !p.Status.IsTerminal() {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		_ = s.cache.Set(ctx, planCacheKey(p.ID), data, terminalPlanTTL)
	}
}

func planCacheKey(id string) string {
	return "plan:" + id
}

func (s *ExecutorService) publishPlanStatus(ctx context.Context, p *plan.ExecutionPlan) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, p.TenantID, broadcast.EventPlanStatus, plan.ResultOf(p))
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(plan.ResultOf(p))
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectPlanStatus, data); err != nil {
		slog.Warn("publish plan status", "plan_id", p.ID, "error", err)
	}
}
