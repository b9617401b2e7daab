// Package broadcast defines the port for pushing real-time events to
// connected operator dashboards.
package broadcast

import "context"

// Broadcaster fan-outs typed events to connected clients. Implementations
// must scope delivery to the given tenant.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any)
}

// Event type constants for dashboard messages.
const (
	EventApprovalPending = "approval.pending"
	EventApprovalDecided = "approval.decided"
	EventPlanStatus      = "plan.status"
)
