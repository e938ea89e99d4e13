package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "councild"

// StartCouncilSpan starts a span for a full council evaluation.
func StartCouncilSpan(ctx context.Context, applicationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council",
		trace.WithAttributes(
			attribute.String("application.id", applicationID),
		),
	)
}

// StartEvaluationSpan starts a span for one agent evaluation.
func StartEvaluationSpan(ctx context.Context, agentID string, round int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "evaluation",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("round", round),
		),
	)
}

// StartSynthesisSpan starts a span for decision synthesis.
func StartSynthesisSpan(ctx context.Context, applicationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "synthesis",
		trace.WithAttributes(
			attribute.String("application.id", applicationID),
		),
	)
}
