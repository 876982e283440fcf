package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/orneryd/fistulosum/pkg/search"

type metrics struct {
	candidates metric.Int64Counter
	batches    metric.Int64Counter
	matches    metric.Int64Counter
	duration   metric.Float64Histogram
	runs       metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter(meterName)
	candidates, _ := meter.Int64Counter("fistulosum.candidates.hashed",
		metric.WithDescription("Candidates hashed and matched"))
	batches, _ := meter.Int64Counter("fistulosum.batches",
		metric.WithDescription("Batches processed"))
	matches, _ := meter.Int64Counter("fistulosum.matches",
		metric.WithDescription("Matches reported"))
	duration, _ := meter.Float64Histogram("fistulosum.batch.duration",
		metric.WithDescription("Time to hash and match one batch"),
		metric.WithUnit("ms"))
	runs, _ := meter.Int64Counter("fistulosum.runs",
		metric.WithDescription("Completed runs by status"))
	return &metrics{
		candidates: candidates,
		batches:    batches,
		matches:    matches,
		duration:   duration,
		runs:       runs,
	}
}

func (m *metrics) batch(ctx context.Context, backend string, count int, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	m.candidates.Add(ctx, int64(count), attrs)
	m.batches.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(took)/float64(time.Millisecond), attrs)
}

func (m *metrics) match(ctx context.Context, backend string) {
	m.matches.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

func (m *metrics) run(ctx context.Context, status Status) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}
