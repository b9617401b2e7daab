package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// StepTemplate describes one step of an action's plan before instantiation.
type StepTemplate struct {
	Action     string
	Critical   bool
	Reversible bool
}

// Planner turns approved recommendations into execution plans using an
// action → step-template registry injected at construction.
type Planner struct {
	templates map[string][]StepTemplate
}

// NewPlanner creates a Planner with the given registry.
func NewPlanner(templates map[string][]StepTemplate) *Planner {
	return &Planner{templates: templates}
}

// DefaultTemplates returns the built-in action registry. Actions absent from
// the registry get a single-step pass-through plan.
func DefaultTemplates() map[string][]StepTemplate {
	return map[string][]StepTemplate{
		"migrate_to_spot": {
			{Action: "take_snapshot", Critical: true, Reversible: true},
			{Action: "migrate_workload", Critical: true, Reversible: true},
			{Action: "validate_quality", Critical: true, Reversible: false},
		},
		"migrate_to_ondemand": {
			{Action: "take_snapshot", Critical: true, Reversible: true},
			{Action: "migrate_workload", Critical: true, Reversible: true},
			{Action: "validate_quality", Critical: true, Reversible: false},
		},
		"rightsize_instance": {
			{Action: "take_snapshot", Critical: true, Reversible: true},
			{Action: "resize_instance", Critical: true, Reversible: true},
			{Action: "verify_health", Critical: false, Reversible: false},
		},
		"scale_up": {
			{Action: "provision_capacity", Critical: true, Reversible: true},
			{Action: "rebalance_load", Critical: false, Reversible: false},
		},
		"scale_down": {
			{Action: "drain_connections", Critical: true, Reversible: true},
			{Action: "release_capacity", Critical: true, Reversible: true},
			{Action: "verify_health", Critical: false, Reversible: false},
		},
		"terminate_idle": {
			{Action: "take_snapshot", Critical: true, Reversible: true},
			{Action: "terminate_instance", Critical: true, Reversible: false},
		},
	}
}

// Build instantiates a plan for the recommendation's action. Unknown actions
// produce a single-step pass-through plan so new action names keep working
// end to end without a registry entry.
func (p *Planner) Build(rec *recommendation.Recommendation) *ExecutionPlan {
	tmpl, ok := p.templates[rec.Action]
	if !ok {
		tmpl = []StepTemplate{{Action: rec.Action, Critical: true, Reversible: false}}
	}

	ep := &ExecutionPlan{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		TenantID:         rec.TenantID,
		Action:           rec.Action,
		ResourceIDs:      rec.ResourceIDs,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	for i, st := range tmpl {
		ep.Steps = append(ep.Steps, Step{
			ID:         uuid.NewString(),
			PlanID:     ep.ID,
			Index:      i,
			Action:     st.Action,
			Critical:   st.Critical,
			Reversible: st.Reversible,
			Status:     StepStatusPending,
		})
	}
	return ep
}
