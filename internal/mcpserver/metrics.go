package mcpserver

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	mcpMetricsOnce      sync.Once
	mcpRequestCounter   metric.Int64Counter
	mcpErrorCounter     metric.Int64Counter
	mcpLatencyHistogram metric.Float64Histogram
	mcpResultHistogram  metric.Int64Histogram
)

func initMCPMetrics() {
	mcpMetricsOnce.Do(func() {
		meter := otel.Meter("halalfinder/mcpserver")

		var err error
		mcpRequestCounter, err = meter.Int64Counter(
			"halalfinder.mcp.requests.total",
			metric.WithDescription("Total MCP restaurant search tool calls"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP request counter: %v", err)
		}

		mcpErrorCounter, err = meter.Int64Counter(
			"halalfinder.mcp.errors.total",
			metric.WithDescription("MCP restaurant search tool calls that returned an error result"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP error counter: %v", err)
		}

		mcpLatencyHistogram, err = meter.Float64Histogram(
			"halalfinder.mcp.response_time",
			metric.WithDescription("MCP restaurant search tool response time (ms)"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP latency histogram: %v", err)
		}

		mcpResultHistogram, err = meter.Int64Histogram(
			"halalfinder.mcp.results",
			metric.WithDescription("Restaurants returned per MCP tool call"),
			metric.WithUnit("{restaurants}"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP result histogram: %v", err)
		}
	})
}

// recordMCPMetrics records one tool call. errType is empty on success.
func recordMCPMetrics(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, results int, errType string) {
	initMCPMetrics()
	opt := metric.WithAttributes(attrs...)
	if mcpRequestCounter != nil {
		mcpRequestCounter.Add(ctx, 1, opt)
	}
	if mcpLatencyHistogram != nil {
		mcpLatencyHistogram.Record(ctx, float64(duration.Milliseconds()), opt)
	}
	if errType != "" {
		if mcpErrorCounter != nil {
			errAttrs := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("error.type", errType))
			mcpErrorCounter.Add(ctx, 1, metric.WithAttributes(errAttrs...))
		}
		return
	}
	if mcpResultHistogram != nil {
		mcpResultHistogram.Record(ctx, int64(results), opt)
	}
}
