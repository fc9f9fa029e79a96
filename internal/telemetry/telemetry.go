// Package telemetry installs the OpenTelemetry tracer and meter providers
// used for run, think, act and tool spans and for tool call metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"stepwise/internal/config"
)

// ShutdownFunc flushes pending spans and metrics and releases the exporters.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup exports spans and metrics over OTLP/HTTP when telemetry is enabled.
// Otherwise the global no-op providers stay in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	traceOpts := []otlptracehttp.Option{}
	metricOpts := []otlpmetrichttp.Option{}
	if cfg.Endpoint != "" {
		traceOpts = append(traceOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		metricOpts = append(metricOpts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	spanExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create span exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: failed to create metric exporter: %w", err)
	}

	tracerProvider := NewProvider(sdktrace.WithBatcher(spanExporter), cfg.ServiceName, version)
	meterProvider := NewMeterProvider(sdkmetric.NewPeriodicReader(metricExporter), cfg.ServiceName, version)
	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}, nil
}

// NewProvider builds a tracer provider tagged with the service name and
// version. The span processor decides where spans go.
func NewProvider(processor sdktrace.TracerProviderOption, serviceName, version string) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(newResource(serviceName, version)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}

// NewMeterProvider builds a meter provider with the same resource as
// NewProvider, collecting through reader.
func NewMeterProvider(reader sdkmetric.Reader, serviceName, version string) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(newResource(serviceName, version)),
	)
}

func newResource(serviceName, version string) *resource.Resource {
	if serviceName == "" {
		serviceName = "stepwise"
	}
	return resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
}
