package observability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultShutdownTimeout = 5 * time.Second

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs tracing and metrics from the root configuration.
// version is reported as service.version.
func Init(rootCfg *types.Config, version string) (ShutdownFunc, error) {
	otelCfg, err := LoadConfig(rootCfg, version)
	if err != nil {
		return noopShutdown, err
	}

	ctx := context.Background()

	tp, err := InitTracer(ctx, otelCfg)
	if err != nil {
		return noopShutdown, err
	}

	mp, err := InitMeter(ctx, otelCfg)
	if err != nil {
		_ = NewShutdownFunc(tp, nil)(ctx)
		return noopShutdown, err
	}

	return NewShutdownFunc(tp, mp), nil
}

// NewShutdownFunc stops tp then mp, joining their errors.
func NewShutdownFunc(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
			defer cancel()
		}

		var errs []error
		if tp != nil {
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("observability: failed to shutdown tracer provider: %v", err)
				errs = append(errs, fmt.Errorf("tracer provider: %w", err))
			}
		}
		if mp != nil {
			if err := mp.Shutdown(ctx); err != nil {
				log.Printf("observability: failed to shutdown meter provider: %v", err)
				errs = append(errs, fmt.Errorf("meter provider: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
