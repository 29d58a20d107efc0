package devserver

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type meters struct {
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func newMeters(app commoncfg.Application) (*meters, error) {
	meter := otel.Meter(
		"borrowbook/"+app.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(app)...),
	)

	var (
		m   meters
		err error
	)

	m.counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request_count meter: %w", err)
	}

	m.hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration meter: %w", err)
	}

	return &m, nil
}
