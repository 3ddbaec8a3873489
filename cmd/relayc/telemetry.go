package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/seuros/gopher-relay/src/engine"
)

// setupTelemetry builds the engine observability config. Spans and metrics
// are exported to w when enabled; shutdown flushes both.
func setupTelemetry(tracing, metrics bool, w io.Writer) (*engine.ObservabilityConfig, func(context.Context) error, error) {
	config := engine.DefaultObservabilityConfig()
	config.EnableTracing = tracing
	config.EnableMetrics = metrics

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	if tracing {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		config.TracerProvider = tp
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if metrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		config.MeterProvider = mp
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return config, shutdown, nil
}
