package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	otlpmetricgrpc "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otlpmetrichttp "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeter installs the global meter provider. The search request
// counters and the invocation gauge are read through it.
func InitMeter(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: meter initialization requires a config")
	}

	var mp *sdkmetric.MeterProvider
	if cfg.Enabled {
		exporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observability: failed to create OTLP metric exporter: %w", err)
		}
		if mp, err = NewMeterProvider(ctx, cfg, exporter); err != nil {
			return nil, err
		}
	} else {
		mp = sdkmetric.NewMeterProvider()
	}

	otel.SetMeterProvider(mp)
	return mp, nil
}

// NewMeterProvider builds a meter provider exporting periodically through exporter.
func NewMeterProvider(ctx context.Context, cfg *Config, exporter sdkmetric.Exporter) (*sdkmetric.MeterProvider, error) {
	if exporter == nil {
		return nil, fmt.Errorf("observability: metric exporter cannot be nil")
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricExportInterval))),
	), nil
}

func newMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	ep := cfg.endpoint
	if ep == nil {
		return nil, fmt.Errorf("config was not validated")
	}

	if ep.protocol == protocolGRPC {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(ep.base)}
		if ep.insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}

	target, err := ep.signalURL("metrics")
	if err != nil {
		return nil, err
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(target)}
	if ep.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}
