package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "optifleet"

// StartSpan starts a span on the engine tracer with a tenant attribute.
// Callers must End() the returned span.
func StartSpan(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	return ctx, span
}
