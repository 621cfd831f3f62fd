// Package observability wires OpenTelemetry tracing for the chat API.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds tracing settings.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	Environment       string
	TracingEnabled    bool
	OTLPEndpoint      string
	OTLPHeaders       map[string]string
	OTLPInsecure      bool
	SamplingRate      float64
	PIILevel          PIILevel
	TraceBatchTimeout time.Duration
}

// Provider holds the initialized tracer and sanitizer.
type Provider struct {
	Tracer         trace.Tracer
	TracerProvider *sdktrace.TracerProvider
	Sanitizer      *Sanitizer

	shutdownFuncs []func(context.Context) error
}

// Init sets up tracing. With tracing disabled the global no-op tracer is used.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	provider := &Provider{
		Sanitizer: NewSanitizer(cfg.PIILevel, cfg.ServiceName),
	}
	if !cfg.TracingEnabled {
		provider.Tracer = otel.Tracer(cfg.ServiceName)
		return provider, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp, err := initTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	provider.TracerProvider = tp
	provider.Tracer = tp.Tracer(cfg.ServiceName)
	provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	for _, shutdown := range p.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

func initTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithHeaders(cfg.OTLPHeaders),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	batchTimeout := cfg.TraceBatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Second
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	), nil
}
