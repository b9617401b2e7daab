package approval

import (
	"time"

	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Decision is the outcome of classifying a recommendation against the risk policy.
type Decision struct {
	Risk        recommendation.Risk `json:"risk"`
	AutoApprove bool                `json:"auto_approve"`
	// Window is how long a pending request stays actionable. Zero for
	// auto-approved risk levels.
	Window time.Duration `json:"window"`
}

// Policy maps risk levels to approval behavior. Injected at construction so
// deployments can tighten or relax windows without code changes.
type Policy struct {
	windows map[recommendation.Risk]time.Duration
	auto    map[recommendation.Risk]bool
}

// NewPolicy builds a Policy from explicit tables. Risk levels missing from
// the tables fall back to requiring approval with the critical window.
func NewPolicy(windows map[recommendation.Risk]time.Duration, auto map[recommendation.Risk]bool) *Policy {
	return &Policy{windows: windows, auto: auto}
}

// DefaultPolicy returns the standard risk policy: low risk auto-approves,
// medium waits 48h, high 24h, critical 4h.
func DefaultPolicy() *Policy {
	return NewPolicy(
		map[recommendation.Risk]time.Duration{
			recommendation.RiskMedium:   48 * time.Hour,
			recommendation.RiskHigh:     24 * time.Hour,
			recommendation.RiskCritical: 4 * time.Hour,
		},
		map[recommendation.Risk]bool{
			recommendation.RiskLow: true,
		},
	)
}

// Classify returns the approval decision for a recommendation's risk level.
func (p *Policy) Classify(rec *recommendation.Recommendation) Decision {
	if p.auto[rec.Risk] {
		return Decision{Risk: rec.Risk, AutoApprove: true}
	}
	window, ok := p.windows[rec.Risk]
	if !ok {
		window = 4 * time.Hour
	}
	return Decision{Risk: rec.Risk, Window: window}
}
