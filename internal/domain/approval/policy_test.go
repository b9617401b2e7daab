package approval_test

import (
	"testing"
	"time"

	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

func recWithRisk(risk recommendation.Risk) *recommendation.Recommendation {
	return &recommendation.Recommendation{ID: "r1", TenantID: "t1", Risk: risk}
}

func TestDefaultPolicyLowAutoApproves(t *testing.T) {
	d := approval.DefaultPolicy().Classify(recWithRisk(recommendation.RiskLow))
	if !d.AutoApprove {
		t.Fatal("low risk must auto-approve")
	}
	if d.Window != 0 {
		t.Fatalf("auto-approved risk has no window, got %s", d.Window)
	}
}

func TestDefaultPolicyWindows(t *testing.T) {
	policy := approval.DefaultPolicy()
	cases := []struct {
		risk   recommendation.Risk
		window time.Duration
	}{
		{recommendation.RiskMedium, 48 * time.Hour},
		{recommendation.RiskHigh, 24 * time.Hour},
		{recommendation.RiskCritical, 4 * time.Hour},
	}
	for _, tc := range cases {
		d := policy.Classify(recWithRisk(tc.risk))
		if d.AutoApprove {
			t.Fatalf("%s risk must not auto-approve", tc.risk)
		}
		if d.Window != tc.window {
			t.Fatalf("%s risk: expected window %s, got %s", tc.risk, tc.window, d.Window)
		}
	}
}

func TestClassifyUnknownRiskRequiresApproval(t *testing.T) {
	d := approval.DefaultPolicy().Classify(recWithRisk("unheard-of"))
	if d.AutoApprove {
		t.Fatal("unknown risk must not auto-approve")
	}
	if d.Window != 4*time.Hour {
		t.Fatalf("unknown risk falls back to the tightest window, got %s", d.Window)
	}
}

func TestExpiredAt(t *testing.T) {
	now := time.Now()

	pending := approval.Request{Status: approval.StatusPending, ExpiresAt: now.Add(-time.Minute)}
	if !pending.ExpiredAt(now) {
		t.Fatal("pending request past its window must report expired")
	}

	fresh := approval.Request{Status: approval.StatusPending, ExpiresAt: now.Add(time.Hour)}
	if fresh.ExpiredAt(now) {
		t.Fatal("pending request inside its window must not report expired")
	}

	decided := approval.Request{Status: approval.StatusApproved, ExpiresAt: now.Add(-time.Minute)}
	if decided.ExpiredAt(now) {
		t.Fatal("decided request never expires")
	}

	auto := approval.Request{Status: approval.StatusPending}
	if auto.ExpiredAt(now) {
		t.Fatal("request without an expiry never expires")
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()

	lapsed := approval.Request{Status: approval.StatusPending, ExpiresAt: now.Add(-time.Second)}
	if got := lapsed.EffectiveStatus(now); got != approval.StatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	fresh := approval.Request{Status: approval.StatusPending, ExpiresAt: now.Add(time.Second)}
	if got := fresh.EffectiveStatus(now); got != approval.StatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if approval.StatusPending.IsTerminal() {
		t.Fatal("pending is not terminal")
	}
	for _, s := range []approval.Status{approval.StatusApproved, approval.StatusRejected, approval.StatusExpired} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
