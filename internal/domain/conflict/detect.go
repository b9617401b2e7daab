package conflict

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Detector finds conflicts within a single tenant's batch of recommendations.
// The opposite-action table is injected at construction so engines running
// per-tenant shards can carry independent configs.
type Detector struct {
	opposites map[string]string
}

// NewDetector creates a Detector with the given opposite-action table. Pairs
// are normalized so lookup works in both directions.
func NewDetector(opposites map[string]string) *Detector {
	norm := make(map[string]string, len(opposites)*2)
	for a, b := range opposites {
		norm[a] = b
		norm[b] = a
	}
	return &Detector{opposites: norm}
}

// DefaultOpposites returns the built-in table of action pairs known to
// contradict each other.
func DefaultOpposites() map[string]string {
	return map[string]string{
		"scale_up":        "scale_down",
		"migrate_to_spot": "migrate_to_ondemand",
		"start_instance":  "stop_instance",
		"attach_volume":   "detach_volume",
		"enable_caching":  "disable_caching",
	}
}

// Detect evaluates all unordered pairs of the batch and returns every conflict
// found. The caller guarantees a single tenant per call. Detection is pure:
// recommendation status is never mutated here.
//
// Pairwise comparison is O(n²); batches are expected to stay in the tens per
// tenant, so no resource index is maintained.
func (d *Detector) Detect(recs []recommendation.Recommendation) []Conflict {
	var conflicts []Conflict

	for i := range recs {
		for j := i + 1; j < len(recs); j++ {
			a, b := &recs[i], &recs[j]

			overlap := recommendation.OverlappingResources(a, b)
			if len(overlap) > 0 {
				conflicts = append(conflicts, Conflict{
					ID:                uuid.NewString(),
					TenantID:          a.TenantID,
					Type:              TypeResourceOverlap,
					RecommendationIDs: []string{a.ID, b.ID},
					Severity:          SeverityMedium,
					Description: fmt.Sprintf("recommendations %s and %s both affect resources [%s]",
						a.ID, b.ID, strings.Join(overlap, ", ")),
				})
			}

			// Contradictory actions are only a conflict when the pair targets
			// at least one common resource. Recorded in addition to the
			// resource-overlap conflict on the same pair.
			if len(overlap) > 0 && d.opposites[a.Action] == b.Action {
				conflicts = append(conflicts, Conflict{
					ID:                uuid.NewString(),
					TenantID:          a.TenantID,
					Type:              TypeContradictoryAction,
					RecommendationIDs: []string{a.ID, b.ID},
					Severity:          SeverityHigh,
					Description: fmt.Sprintf("recommendation %s (%s) contradicts %s (%s) on resources [%s]",
						a.ID, a.Action, b.ID, b.Action, strings.Join(overlap, ", ")),
				})
			}
		}
	}

	conflicts = append(conflicts, d.detectCycles(recs)...)
	return conflicts
}

// detectCycles finds dependency cycles among recommendations: rec A depends on
// a resource state produced by rec B when one of A's DependsOn ids appears in
// B's affected resource set. A cycle of length >= 2 over that relation yields
// one dependency-cycle conflict per cycle.
func (d *Detector) detectCycles(recs []recommendation.Recommendation) []Conflict {
	producers := make(map[string][]int) // resource id -> indices of recs that affect it
	for i := range recs {
		for _, rid := range recs[i].ResourceIDs {
			producers[rid] = append(producers[rid], i)
		}
	}

	// edges[i] lists the recs that rec i depends on.
	edges := make(map[int][]int, len(recs))
	for i := range recs {
		for _, dep := range recs[i].DependsOn {
			for _, j := range producers[dep] {
				if j != i {
					edges[i] = append(edges[i], j)
				}
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, len(recs))
	var stack []int
	var conflicts []Conflict
	reported := make(map[string]bool)

	var visit func(i int)
	visit = func(i int) {
		state[i] = inStack
		stack = append(stack, i)
		for _, j := range edges[i] {
			switch state[j] {
			case unvisited:
				visit(j)
			case inStack:
				// Found a cycle: everything from j's stack position onward.
				var ids []string
				seen := false
				for _, k := range stack {
					if k == j {
						seen = true
					}
					if seen {
						ids = append(ids, recs[k].ID)
					}
				}
				if len(ids) < 2 {
					continue
				}
				key := strings.Join(ids, "|")
				if reported[key] {
					continue
				}
				reported[key] = true
				conflicts = append(conflicts, Conflict{
					ID:                uuid.NewString(),
					TenantID:          recs[i].TenantID,
					Type:              TypeDependencyCycle,
					RecommendationIDs: ids,
					Severity:          SeverityHigh,
					Description: fmt.Sprintf("recommendations [%s] form a dependency cycle",
						strings.Join(ids, ", ")),
				})
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
	}

	for i := range recs {
		if state[i] == unvisited {
			visit(i)
		}
	}
	return conflicts
}
