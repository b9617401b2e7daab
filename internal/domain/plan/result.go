package plan

import "time"

// ExecutionResult summarizes one Execute call. For terminal plans it is
// derived from the stored record, so re-executing a finished plan returns
// the same result without re-running steps.
type ExecutionResult struct {
	PlanID         string        `json:"plan_id"`
	Status         Status        `json:"status"`
	Error          string        `json:"error,omitempty"`
	StepsTotal     int           `json:"steps_total"`
	StepsCompleted int           `json:"steps_completed"`
	Duration       time.Duration `json:"duration"`
}

// ResultOf derives the ExecutionResult from a plan's current state.
func ResultOf(p *ExecutionPlan) ExecutionResult {
	completed := 0
	for i := range p.Steps {
		if p.Steps[i].Status == StepStatusCompleted {
			completed++
		}
	}
	return ExecutionResult{
		PlanID:         p.ID,
		Status:         p.Status,
		Error:          p.Error,
		StepsTotal:     len(p.Steps),
		StepsCompleted: completed,
		Duration:       p.Duration,
	}
}
