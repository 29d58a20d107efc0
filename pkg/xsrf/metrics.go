package xsrf

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/borrowbook/borrowbook/pkg/xsrf"

type meters struct {
	bootstrapCount    metric.Int64Counter
	refreshCount      metric.Int64Counter
	unauthorizedCount metric.Int64Counter
	duration          metric.Int64Histogram
}

func newMeters() (*meters, error) {
	meter := otel.Meter(instrumentationName, metric.WithInstrumentationVersion(otel.Version()))

	var (
		m   meters
		err error
	)

	m.bootstrapCount, err = meter.Int64Counter(
		"xsrf.bootstrap_count",
		metric.WithDescription("Csrf cookie bootstrap requests"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap_count meter: %w", err)
	}

	m.refreshCount, err = meter.Int64Counter(
		"xsrf.refresh_count",
		metric.WithDescription("Session refresh requests"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh_count meter: %w", err)
	}

	m.unauthorizedCount, err = meter.Int64Counter(
		"xsrf.unauthorized_count",
		metric.WithDescription("Calls that ended with an unrecoverable session"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unauthorized_count meter: %w", err)
	}

	m.duration, err = meter.Int64Histogram(
		"xsrf.duration",
		metric.WithDescription("End to end duration of a logical call including refresh and resend"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration meter: %w", err)
	}

	return &m, nil
}

func (m *meters) bootstrapped(ctx context.Context) {
	m.bootstrapCount.Add(ctx, 1)
}

func (m *meters) refreshed(ctx context.Context, ok bool) {
	m.refreshCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *meters) unauthorized(ctx context.Context) {
	m.unauthorizedCount.Add(ctx, 1)
}

func (m *meters) record(ctx context.Context, method, outcome string, elapsed time.Duration) {
	m.duration.Record(ctx, elapsed.Milliseconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}
