package service

import (
	"context"
	"sync"
	"time"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store mirroring the Postgres adapter's
// transition semantics: the approval decision compare-and-swap, the plan
// version check, and one plan per recommendation.
type mockStore struct {
	mu        sync.Mutex
	batches   map[string]int
	recs      map[string]*recommendation.Recommendation
	recBatch  map[string][]string // batch id -> rec ids
	conflicts map[string][]conflict.Conflict
	approvals map[string]*approval.Request
	plans     map[string]*plan.ExecutionPlan
	planByRec map[string]string // recommendation id -> plan id
}

func newMockStore() *mockStore {
	return &mockStore{
		batches:   make(map[string]int),
		recs:      make(map[string]*recommendation.Recommendation),
		recBatch:  make(map[string][]string),
		conflicts: make(map[string][]conflict.Conflict),
		approvals: make(map[string]*approval.Request),
		plans:     make(map[string]*plan.ExecutionPlan),
		planByRec: make(map[string]string),
	}
}

func (s *mockStore) CreateBatch(_ context.Context, batchID string, submitted int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID] = submitted
	return nil
}

func (s *mockStore) CreateRecommendations(_ context.Context, batchID string, recs []recommendation.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range recs {
		r := recs[i]
		s.recs[r.ID] = &r
		s.recBatch[batchID] = append(s.recBatch[batchID], r.ID)
	}
	return nil
}

func (s *mockStore) GetRecommendation(_ context.Context, id string) (*recommendation.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *mockStore) UpdateRecommendationStatus(_ context.Context, id string, status recommendation.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	return nil
}

func (s *mockStore) ListRecommendationsByBatch(_ context.Context, batchID string) ([]recommendation.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recommendation.Recommendation
	for _, id := range s.recBatch[batchID] {
		out = append(out, *s.recs[id])
	}
	return out, nil
}

func (s *mockStore) CreateConflicts(_ context.Context, batchID string, conflicts []conflict.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[batchID] = append(s.conflicts[batchID], conflicts...)
	return nil
}

func (s *mockStore) ListConflictsByBatch(_ context.Context, batchID string) ([]conflict.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conflict.Conflict(nil), s.conflicts[batchID]...), nil
}

func (s *mockStore) CreateApproval(_ context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.approvals[req.ID] = &cp
	return nil
}

func (s *mockStore) GetApproval(_ context.Context, id string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *mockStore) ListApprovals(_ context.Context, status approval.Status) ([]approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.Request
	for _, req := range s.approvals {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (s *mockStore) DecideApproval(_ context.Context, id string, status approval.Status, decidedBy, reason string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Status != approval.StatusPending {
		return nil, domain.ErrInvalidTransition
	}
	req.Status = status
	req.DecidedBy = decidedBy
	req.Reason = reason
	req.DecidedAt = time.Now().UTC()
	cp := *req
	return &cp, nil
}

func (s *mockStore) ExpireApproval(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status == approval.StatusPending {
		req.Status = approval.StatusExpired
	}
	return nil
}

func (s *mockStore) CreatePlan(_ context.Context, p *plan.ExecutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.planByRec[p.RecommendationID]; exists {
		return domain.ErrConflict
	}
	p.Version = 1
	cp := *p
	cp.Steps = append([]plan.Step(nil), p.Steps...)
	s.plans[p.ID] = &cp
	s.planByRec[p.RecommendationID] = p.ID
	return nil
}

func (s *mockStore) GetPlan(_ context.Context, id string) (*plan.ExecutionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyPlanLocked(id)
}

func (s *mockStore) GetPlanByRecommendation(_ context.Context, recommendationID string) (*plan.ExecutionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.planByRec[recommendationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.copyPlanLocked(id)
}

func (s *mockStore) UpdatePlan(_ context.Context, p *plan.ExecutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != p.Version {
		return domain.ErrConflict
	}
	p.Version++
	cp := *p
	cp.Steps = append([]plan.Step(nil), p.Steps...)
	s.plans[p.ID] = &cp
	return nil
}

func (s *mockStore) UpdateStep(_ context.Context, st *plan.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[st.PlanID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range p.Steps {
		if p.Steps[i].ID == st.ID {
			p.Steps[i] = *st
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *mockStore) copyPlanLocked(id string) (*plan.ExecutionPlan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	cp.Steps = append([]plan.Step(nil), p.Steps...)
	return &cp, nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published map[string]int
	handlers  map[string]messagequeue.Handler
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		published: make(map[string]int),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject]++
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {}, nil
}

// deliver hands a message to the handler registered for subject.
func (q *mockQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	handler := q.handlers[subject]
	q.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(ctx, subject, data)
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[subject]
}

// mockInvoker implements actionhandler.Invoker. Actions listed in fail error
// out; every call is recorded in order.
type mockInvoker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block map[string]time.Duration // simulate slow handlers
}

func newMockInvoker() *mockInvoker {
	return &mockInvoker{fail: make(map[string]error), block: make(map[string]time.Duration)}
}

func (m *mockInvoker) Invoke(ctx context.Context, action string, _ []string, _ map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, action)
	failErr := m.fail[action]
	delay := m.block[action]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	return map[string]any{"action": action, "ok": true}, nil
}

func (m *mockInvoker) calledActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockHub records broadcast events per type.
type mockHub struct {
	mu     sync.Mutex
	events []string
}

func (h *mockHub) BroadcastEvent(_ context.Context, _ string, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *mockHub) eventCount(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}
