package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "councild"

// Metrics holds all councild metric instruments.
type Metrics struct {
	EvaluationsStarted  metric.Int64Counter
	EvaluationsDegraded metric.Int64Counter
	DeliberationRounds  metric.Int64Counter
	DecisionsRouted     metric.Int64Counter
	GatewayDuration     metric.Float64Histogram
	CouncilDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EvaluationsStarted, err = meter.Int64Counter("councild.evaluations.started",
		metric.WithDescription("Number of agent evaluations started"))
	if err != nil {
		return nil, err
	}

	m.EvaluationsDegraded, err = meter.Int64Counter("councild.evaluations.degraded",
		metric.WithDescription("Number of evaluations that degraded after gateway failure"))
	if err != nil {
		return nil, err
	}

	m.DeliberationRounds, err = meter.Int64Counter("councild.deliberation.rounds",
		metric.WithDescription("Number of deliberation rounds run"))
	if err != nil {
		return nil, err
	}

	m.DecisionsRouted, err = meter.Int64Counter("councild.decisions.routed",
		metric.WithDescription("Number of decisions routed, by route attribute"))
	if err != nil {
		return nil, err
	}

	m.GatewayDuration, err = meter.Float64Histogram("councild.gateway.duration_seconds",
		metric.WithDescription("Gateway call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CouncilDuration, err = meter.Float64Histogram("councild.council.duration_seconds",
		metric.WithDescription("Full council pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
