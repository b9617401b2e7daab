package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Resolution is the outcome of resolving one batch's conflicts. Kept and
// Discarded carry updated statuses; Conflicts carry resolution narratives.
type Resolution struct {
	Kept      []recommendation.Recommendation
	Discarded []recommendation.Recommendation
	Conflicts []Conflict
}

// Resolve partitions the batch into kept and discarded recommendations by
// grouping conflicts into connected components and keeping exactly the
// top-ranked recommendation per component. The ranking is a total order:
// higher priority, then higher estimated savings, then higher confidence,
// then lower risk, then earlier input position. Recommendations touched by no
// conflict pass through as kept.
//
// Resolution is deterministic: the same input (including order) always yields
// the same partition.
func Resolve(recs []recommendation.Recommendation, conflicts []Conflict) Resolution {
	index := make(map[string]int, len(recs)) // rec id -> input position
	for i := range recs {
		index[recs[i].ID] = i
	}

	// Union-find over input positions; conflicts are the edges.
	parent := make([]int, len(recs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	conflicted := make(map[int]bool)
	for _, c := range conflicts {
		first := -1
		for _, id := range c.RecommendationIDs {
			i, ok := index[id]
			if !ok {
				continue
			}
			conflicted[i] = true
			if first == -1 {
				first = i
			} else {
				union(first, i)
			}
		}
	}

	// Group conflicted recommendations by component root.
	components := make(map[int][]int)
	for i := range recs {
		if conflicted[i] {
			root := find(i)
			components[root] = append(components[root], i)
		}
	}

	winners := make(map[string]bool)
	keptByRoot := make(map[int]string) // component root -> winning rec id
	criteria := make(map[int]string)   // component root -> decisive criterion

	for root, members := range components {
		sort.SliceStable(members, func(x, y int) bool {
			return ranksBefore(&recs[members[x]], &recs[members[y]], members[x], members[y])
		})
		winners[recs[members[0]].ID] = true
		keptByRoot[root] = recs[members[0]].ID
		if len(members) > 1 {
			criteria[root] = decisiveCriterion(&recs[members[0]], &recs[members[1]])
		} else {
			criteria[root] = "no competing recommendation"
		}
	}

	res := Resolution{}
	for i := range recs {
		r := recs[i]
		if !conflicted[i] || winners[r.ID] {
			r.Status = recommendation.StatusKept
			res.Kept = append(res.Kept, r)
		} else {
			r.Status = recommendation.StatusDiscarded
			res.Discarded = append(res.Discarded, r)
		}
	}

	// Annotate each conflict with the resolution narrative. The component
	// winner may not appear among the conflict's own ids when conflicts chain
	// into one component, so it is looked up by component root.
	for _, c := range conflicts {
		root := -1
		for _, id := range c.RecommendationIDs {
			if i, ok := index[id]; ok {
				root = find(i)
				break
			}
		}
		kept := keptByRoot[root]
		var discarded []string
		for _, id := range c.RecommendationIDs {
			if id != kept {
				discarded = append(discarded, id)
			}
		}
		c.Resolved = true
		c.Resolution = fmt.Sprintf("kept %s by %s; discarded [%s]",
			kept, criteria[root], strings.Join(discarded, ", "))
		res.Conflicts = append(res.Conflicts, c)
	}

	return res
}

// ranksBefore reports whether rec a beats rec b in the resolution total order.
// ia and ib are input positions, the final determinism tie-break.
func ranksBefore(a, b *recommendation.Recommendation, ia, ib int) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.EstimatedSavings != b.EstimatedSavings {
		return a.EstimatedSavings > b.EstimatedSavings
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Risk.Rank() != b.Risk.Rank() {
		return a.Risk.Rank() < b.Risk.Rank()
	}
	return ia < ib
}

// decisiveCriterion names the first criterion that separates the component
// winner from the runner-up.
func decisiveCriterion(winner, runnerUp *recommendation.Recommendation) string {
	switch {
	case winner.Priority != runnerUp.Priority:
		return fmt.Sprintf("priority (%d > %d)", winner.Priority, runnerUp.Priority)
	case winner.EstimatedSavings != runnerUp.EstimatedSavings:
		return fmt.Sprintf("estimated savings (%.2f > %.2f)", winner.EstimatedSavings, runnerUp.EstimatedSavings)
	case winner.Confidence != runnerUp.Confidence:
		return fmt.Sprintf("confidence (%.2f > %.2f)", winner.Confidence, runnerUp.Confidence)
	case winner.Risk.Rank() != runnerUp.Risk.Rank():
		return fmt.Sprintf("risk (%s safer than %s)", winner.Risk, runnerUp.Risk)
	default:
		return "input order"
	}
}
