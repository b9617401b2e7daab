package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "optifleet"

// Metrics holds all coordination engine metric instruments.
type Metrics struct {
	Coordinations       metric.Int64Counter
	ConflictsDetected   metric.Int64Counter
	RecsDiscarded       metric.Int64Counter
	ApprovalsAuto       metric.Int64Counter
	ApprovalsPending    metric.Int64Counter
	PlansExecuted       metric.Int64Counter
	PlansRolledBack     metric.Int64Counter
	CoordinationLatency metric.Float64Histogram
	PlanDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Coordinations, err = meter.Int64Counter("optifleet.coordinations",
		metric.WithDescription("Number of coordination batches processed"))
	if err != nil {
		return nil, err
	}

	m.ConflictsDetected, err = meter.Int64Counter("optifleet.conflicts.detected",
		metric.WithDescription("Number of conflicts detected across batches"))
	if err != nil {
		return nil, err
	}

	m.RecsDiscarded, err = meter.Int64Counter("optifleet.recommendations.discarded",
		metric.WithDescription("Number of recommendations discarded by conflict resolution"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsAuto, err = meter.Int64Counter("optifleet.approvals.auto",
		metric.WithDescription("Number of auto-approved recommendations"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsPending, err = meter.Int64Counter("optifleet.approvals.pending",
		metric.WithDescription("Number of approval requests opened for human review"))
	if err != nil {
		return nil, err
	}

	m.PlansExecuted, err = meter.Int64Counter("optifleet.plans.executed",
		metric.WithDescription("Number of execution plans run"))
	if err != nil {
		return nil, err
	}

	m.PlansRolledBack, err = meter.Int64Counter("optifleet.plans.rolled_back",
		metric.WithDescription("Number of plans that ended in rollback"))
	if err != nil {
		return nil, err
	}

	m.CoordinationLatency, err = meter.Float64Histogram("optifleet.coordination.duration_seconds",
		metric.WithDescription("End-to-end coordination batch duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.PlanDuration, err = meter.Float64Histogram("optifleet.plan.duration_seconds",
		metric.WithDescription("Execution plan duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
