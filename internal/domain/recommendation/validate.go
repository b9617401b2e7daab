package recommendation

import (
	"fmt"

	"github.com/optifleet/optifleet/internal/domain"
)

// Validate checks a recommendation at the API boundary. tenantID is the tenant
// the enclosing coordination request belongs to; a recommendation carrying a
// different tenant fails the whole call.
func (r *Recommendation) Validate(tenantID string) error {
	if r.ID == "" {
		return fmt.Errorf("recommendation id is required: %w", domain.ErrValidation)
	}
	if r.TenantID != tenantID {
		return fmt.Errorf("recommendation %s belongs to tenant %q, expected %q: %w",
			r.ID, r.TenantID, tenantID, domain.ErrValidation)
	}
	if r.Action == "" {
		return fmt.Errorf("recommendation %s has no action: %w", r.ID, domain.ErrValidation)
	}
	if len(r.ResourceIDs) == 0 {
		return fmt.Errorf("recommendation %s has an empty resource set: %w", r.ID, domain.ErrValidation)
	}
	if !r.Risk.Valid() {
		return fmt.Errorf("recommendation %s has unknown risk %q: %w", r.ID, r.Risk, domain.ErrValidation)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("recommendation %s confidence %.2f outside [0,1]: %w", r.ID, r.Confidence, domain.ErrValidation)
	}
	return nil
}
