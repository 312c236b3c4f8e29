// Package tracing installs the OpenTelemetry tracer provider used by the
// spans around model turns, rounds and tool dispatch.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config configures the tracer provider.
type Config struct {
	// Enabled switches exporting on. Disabled tracing keeps the global
	// no-op provider.
	Enabled bool

	// Endpoint is the OTLP/gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS for the collector connection.
	Insecure bool

	ServiceName    string
	ServiceVersion string

	// SampleRatio is the fraction of traces recorded. Zero means 1.
	SampleRatio float64
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown function. With tracing disabled it returns a no-op
// shutdown.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "chatreview"
	}
	if cfg.SampleRatio <= 0 {
		cfg.SampleRatio = 1
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider := NewProvider(cfg, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

// NewProvider builds a tracer provider carrying the service resource and
// the configured sampler. Extra options attach exporters or span processors.
func NewProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}
