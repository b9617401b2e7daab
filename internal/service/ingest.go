package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/optifleet/optifleet/internal/domain/coordination"
	"github.com/optifleet/optifleet/internal/middleware"
	"github.com/optifleet/optifleet/internal/port/messagequeue"
)

// IngestService consumes recommendation batches submitted by optimization
// agents over the queue and feeds them into the coordination pipeline. It is
// the asynchronous twin of the coordinate HTTP endpoint.
type IngestService struct {
	coordinator *CoordinatorService
	queue       messagequeue.Queue
}

// NewIngestService creates an IngestService.
func NewIngestService(coordinator *CoordinatorService, queue messagequeue.Queue) *IngestService {
	return &IngestService{coordinator: coordinator, queue: queue}
}

// Start subscribes to submitted batches. Messages that fail coordination are
// logged and acknowledged; agents observe the outcome on the completed
// subject, not through redelivery.
func (s *IngestService) Start(ctx context.Context) (func(), error) {
	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectRecsSubmitted, s.handleSubmitted)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectRecsSubmitted, err)
	}
	slog.Info("ingest subscriber started", "subject", messagequeue.SubjectRecsSubmitted)
	return cancel, nil
}

func (s *IngestService) handleSubmitted(ctx context.Context, subject string, data []byte) error {
	var req coordination.Request
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("malformed batch submission", "subject", subject, "error", err)
		return nil
	}
	if req.TenantID == "" {
		req.TenantID = middleware.DefaultTenantID
	}

	ctx = middleware.WithTenantID(ctx, req.TenantID)
	result, err := s.coordinator.Coordinate(ctx, req)
	if err != nil {
		slog.Error("coordination from queue failed",
			"tenant_id", req.TenantID,
			"recommendations", len(req.Recommendations),
			"error", err,
		)
		return nil
	}

	slog.Info("queued batch coordinated",
		"batch_id", result.BatchID,
		"tenant_id", result.TenantID,
		"kept", len(result.Kept),
		"discarded", len(result.Discarded),
	)
	return nil
}
