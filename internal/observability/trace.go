package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer installs the global tracer provider. When disabled the
// provider never samples, so search spans cost almost nothing.
func InitTracer(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: tracer initialization requires a config")
	}

	var tp *sdktrace.TracerProvider
	if cfg.Enabled {
		exporter, err := newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observability: failed to create OTLP trace exporter: %w", err)
		}
		if tp, err = NewTracerProvider(ctx, cfg, exporter); err != nil {
			return nil, err
		}
	} else {
		tp = sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// NewTracerProvider builds a batching tracer provider around exporter.
func NewTracerProvider(ctx context.Context, cfg *Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	if exporter == nil {
		return nil, fmt.Errorf("observability: trace exporter cannot be nil")
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFromConfig(cfg)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	), nil
}

func newTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	ep := cfg.endpoint
	if ep == nil {
		return nil, fmt.Errorf("config was not validated")
	}

	if ep.protocol == protocolGRPC {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(ep.base)}
		if ep.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}

	target, err := ep.signalURL("traces")
	if err != nil {
		return nil, err
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(target)}
	if ep.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func samplerFromConfig(cfg *Config) sdktrace.Sampler {
	switch strings.ToLower(cfg.TracesSampler) {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.TracesSamplerArg)
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracesSamplerArg))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.AlwaysSample()
	}
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String(resourceServiceNameKey, cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	for key, value := range cfg.ResourceAttributes {
		if key == resourceServiceNameKey {
			continue
		}
		attrs = append(attrs, attribute.String(key, value))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}
