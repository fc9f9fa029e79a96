package tool

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// unknownToolLabel replaces names that are not registered, so model typos
// do not create new metric series.
const unknownToolLabel = "unknown"

// callMetrics counts calls, failures and latency per tool.
type callMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newCallMetrics(meter metric.Meter) *callMetrics {
	m, err := buildCallMetrics(meter)
	if err != nil {
		m, _ = buildCallMetrics(noop.NewMeterProvider().Meter(""))
	}
	return m
}

func buildCallMetrics(meter metric.Meter) (*callMetrics, error) {
	calls, err1 := meter.Int64Counter("tool.calls",
		metric.WithDescription("Tool calls executed"),
		metric.WithUnit("{call}"))
	failures, err2 := meter.Int64Counter("tool.failures",
		metric.WithDescription("Tool calls that ended in an error result"),
		metric.WithUnit("{call}"))
	duration, err3 := meter.Float64Histogram("tool.duration",
		metric.WithDescription("Tool execution time"),
		metric.WithUnit("s"))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &callMetrics{calls: calls, failures: failures, duration: duration}, nil
}

func (m *callMetrics) record(ctx context.Context, name string, cr *CallResult) {
	attrs := metric.WithAttributes(
		attribute.String("tool.name", name),
		attribute.Bool("tool.success", cr.Result.Success),
	)
	m.calls.Add(ctx, 1, attrs)
	if !cr.Result.Success {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", name)))
	}
	m.duration.Record(ctx, cr.Duration().Seconds(), attrs)
}
