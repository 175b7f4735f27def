// Package telemetry exposes the tracer and instruments used across the
// generation pipeline. Without an installed SDK the global no-op providers
// make every call free.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/georgeshao/genstudio"

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type Metrics struct {
	submitted metric.Int64Counter
	finished  metric.Int64Counter
	polls     metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	submitted, err := meter.Int64Counter("genstudio.generations.submitted",
		metric.WithDescription("Placeholder records created"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("genstudio.generations.finished",
		metric.WithDescription("Records that reached a terminal status"))
	if err != nil {
		return nil, err
	}
	polls, err := meter.Int64Counter("genstudio.polls",
		metric.WithDescription("Job status queries issued"))
	if err != nil {
		return nil, err
	}

	return &Metrics{submitted: submitted, finished: finished, polls: polls}, nil
}

// The recorders accept a nil receiver so components can run without metrics.

func (m *Metrics) Submitted(ctx context.Context, modelID string, n int) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("model_id", modelID)))
}

func (m *Metrics) Finished(ctx context.Context, modelID, status string) {
	if m == nil {
		return
	}
	m.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model_id", modelID),
		attribute.String("status", status),
	))
}

func (m *Metrics) Polled(ctx context.Context, family, outcome string) {
	if m == nil {
		return
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("outcome", outcome),
	))
}
