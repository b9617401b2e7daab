package conflict_test

import (
	"strings"
	"testing"

	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

func keptIDs(res conflict.Resolution) []string {
	ids := make([]string, 0, len(res.Kept))
	for _, r := range res.Kept {
		ids = append(ids, r.ID)
	}
	return ids
}

func resolveBatch(recs []recommendation.Recommendation) conflict.Resolution {
	return conflict.Resolve(recs, newDetector().Detect(recs))
}

func TestResolveKeepsHigherPriority(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	a.Priority = 5
	b := rec("b", "terminate_idle", "vm-1")
	b.Priority = 3

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if len(res.Kept) != 1 || res.Kept[0].ID != "a" {
		t.Fatalf("expected a kept, got %v", keptIDs(res))
	}
	if len(res.Discarded) != 1 || res.Discarded[0].ID != "b" {
		t.Fatalf("expected b discarded, got %v", res.Discarded)
	}
	if res.Kept[0].Status != recommendation.StatusKept {
		t.Fatalf("expected kept status, got %s", res.Kept[0].Status)
	}
	if res.Discarded[0].Status != recommendation.StatusDiscarded {
		t.Fatalf("expected discarded status, got %s", res.Discarded[0].Status)
	}
}

func TestResolveTieBreakOnSavings(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	a.EstimatedSavings = 100
	b := rec("b", "terminate_idle", "vm-1")
	b.EstimatedSavings = 250

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if res.Kept[0].ID != "b" {
		t.Fatalf("expected b kept on savings, got %v", keptIDs(res))
	}
	if !strings.Contains(res.Conflicts[0].Resolution, "estimated savings") {
		t.Fatalf("expected savings criterion in narrative, got %q", res.Conflicts[0].Resolution)
	}
}

func TestResolveTieBreakOnConfidence(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	a.Confidence = 0.95
	b := rec("b", "terminate_idle", "vm-1")
	b.Confidence = 0.60

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if res.Kept[0].ID != "a" {
		t.Fatalf("expected a kept on confidence, got %v", keptIDs(res))
	}
}

func TestResolveTieBreakOnRisk(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	a.Risk = recommendation.RiskHigh
	a.Confidence = 0.9
	b := rec("b", "terminate_idle", "vm-1")
	b.Risk = recommendation.RiskLow
	b.Confidence = 0.9

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if res.Kept[0].ID != "b" {
		t.Fatalf("expected lower-risk b kept, got %v", keptIDs(res))
	}
}

func TestResolveTieBreakOnInputOrder(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	b := rec("b", "terminate_idle", "vm-1")

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if res.Kept[0].ID != "a" {
		t.Fatalf("expected earlier submission kept on full tie, got %v", keptIDs(res))
	}
}

func TestResolveChainComponentKeepsExactlyOne(t *testing.T) {
	// A-B and B-C conflicts chain into one component; only one survives even
	// though A and C never conflict directly.
	a := rec("a", "rightsize_instance", "vm-1", "vm-2")
	a.Priority = 1
	b := rec("b", "terminate_idle", "vm-2", "vm-3")
	b.Priority = 3
	c := rec("c", "rightsize_instance", "vm-3", "vm-4")
	c.Priority = 2

	res := resolveBatch([]recommendation.Recommendation{a, b, c})
	if len(res.Kept) != 1 || res.Kept[0].ID != "b" {
		t.Fatalf("expected only b kept, got %v", keptIDs(res))
	}
	if len(res.Discarded) != 2 {
		t.Fatalf("expected 2 discarded, got %d", len(res.Discarded))
	}
}

func TestResolveChainConflictNarrativesNameWinner(t *testing.T) {
	// The b-c conflict never involves a directly, yet a is the component
	// winner its narrative must name.
	a := rec("a", "rightsize_instance", "vm-1", "vm-2")
	a.Priority = 9
	b := rec("b", "terminate_idle", "vm-2", "vm-3")
	b.Priority = 5
	c := rec("c", "rightsize_instance", "vm-3", "vm-4")
	c.Priority = 1

	res := resolveBatch([]recommendation.Recommendation{a, b, c})
	if len(res.Kept) != 1 || res.Kept[0].ID != "a" {
		t.Fatalf("expected a kept, got %v", keptIDs(res))
	}
	if len(res.Conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(res.Conflicts))
	}

	var chained *conflict.Conflict
	for i := range res.Conflicts {
		touchesA := false
		for _, id := range res.Conflicts[i].RecommendationIDs {
			if id == "a" {
				touchesA = true
			}
		}
		if !touchesA {
			chained = &res.Conflicts[i]
		}
	}
	if chained == nil {
		t.Fatal("expected a conflict between b and c only")
	}
	if !strings.Contains(chained.Resolution, "kept a") {
		t.Fatalf("narrative must name the component winner, got %q", chained.Resolution)
	}
	if !strings.Contains(chained.Resolution, "discarded [b, c]") {
		t.Fatalf("narrative must list both discarded members, got %q", chained.Resolution)
	}
}

func TestResolveUnconflictedPassThrough(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	b := rec("b", "terminate_idle", "vm-2")

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if len(res.Kept) != 2 || len(res.Discarded) != 0 {
		t.Fatalf("disjoint recommendations must all survive, kept %v", keptIDs(res))
	}
}

func TestResolveAnnotatesConflicts(t *testing.T) {
	a := rec("a", "rightsize_instance", "vm-1")
	a.Priority = 5
	b := rec("b", "terminate_idle", "vm-1")

	res := resolveBatch([]recommendation.Recommendation{a, b})
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 resolved conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if !c.Resolved {
		t.Fatal("conflict must be marked resolved")
	}
	if !strings.Contains(c.Resolution, "kept a") || !strings.Contains(c.Resolution, "priority") {
		t.Fatalf("unexpected resolution narrative %q", c.Resolution)
	}
}

func TestResolveDeterministic(t *testing.T) {
	batch := func() []recommendation.Recommendation {
		a := rec("a", "rightsize_instance", "vm-1", "vm-2")
		b := rec("b", "terminate_idle", "vm-2")
		c := rec("c", "scale_up", "svc-1")
		d := rec("d", "scale_down", "svc-1")
		d.Priority = 2
		return []recommendation.Recommendation{a, b, c, d}
	}

	first := resolveBatch(batch())
	for range 10 {
		again := resolveBatch(batch())
		if len(again.Kept) != len(first.Kept) {
			t.Fatalf("nondeterministic kept count: %d vs %d", len(again.Kept), len(first.Kept))
		}
		for i := range first.Kept {
			if again.Kept[i].ID != first.Kept[i].ID {
				t.Fatalf("nondeterministic kept order: %v vs %v", keptIDs(again), keptIDs(first))
			}
		}
	}
}
