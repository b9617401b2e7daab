// Package approval defines the ApprovalRequest entity and the risk policy
// that decides which recommendations need a human gate.
package approval

import (
	"time"

	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Status represents the lifecycle state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// IsTerminal returns true if the request can no longer be acted on.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Request gates one recommendation behind a human decision. Exactly one
// active request exists per recommendation at a time.
type Request struct {
	ID               string              `json:"id"`
	RecommendationID string              `json:"recommendation_id"`
	TenantID         string              `json:"tenant_id"`
	Risk             recommendation.Risk `json:"risk"`
	Status           Status              `json:"status"`
	RequestedBy      string              `json:"requested_by"`
	DecidedBy        string              `json:"decided_by,omitempty"`
	Reason           string              `json:"reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	// ExpiresAt is zero for auto-approved requests, which never expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	DecidedAt time.Time `json:"decided_at,omitempty"`
}

// ExpiredAt reports whether a still-pending request has passed its expiry
// timestamp at the given instant. Expiry is evaluated lazily on read; no
// background timer is assumed.
func (r *Request) ExpiredAt(now time.Time) bool {
	return r.Status == StatusPending && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// EffectiveStatus returns the status the request should report at the given
// instant, folding in lazy expiry.
func (r *Request) EffectiveStatus(now time.Time) Status {
	if r.ExpiredAt(now) {
		return StatusExpired
	}
	return r.Status
}
