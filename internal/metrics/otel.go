package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "halalfinder/metrics"

var (
	otelOnce sync.Once
	otelErr  error
)

// InitOTelMetrics registers the search usage instruments on the global
// meter provider:
//
//   - halalfinder.invocations.total, a gauge of the persisted totals per mode
//   - halalfinder.searches, a counter of searches seen by this process
//
// Call it after observability.Init so the instruments bind to the exporter.
func InitOTelMetrics() error {
	otelOnce.Do(func() {
		meter := otel.Meter(meterName)

		_, otelErr = meter.Int64ObservableGauge(
			"halalfinder.invocations.total",
			metric.WithDescription("Persisted number of restaurant searches per surface (cli, api, mcp)"),
			metric.WithUnit("{search}"),
			metric.WithInt64Callback(observeTotals),
		)
		if otelErr != nil {
			return
		}

		var live metric.Int64Counter
		live, otelErr = meter.Int64Counter(
			"halalfinder.searches",
			metric.WithDescription("Restaurant searches started by this process per surface"),
			metric.WithUnit("{search}"),
		)
		if otelErr == nil {
			recorder.setLive(live)
		}
	})
	return otelErr
}

func observeTotals(_ context.Context, observer metric.Int64Observer) error {
	totals := recorder.Totals()
	for _, mode := range AllModes {
		observer.Observe(totals[mode], metric.WithAttributes(attribute.String("mode", string(mode))))
	}
	return nil
}

// ResetOTelForTesting allows InitOTelMetrics to register again
func ResetOTelForTesting() {
	otelOnce = sync.Once{}
	otelErr = nil
	recorder.setLive(nil)
}
