package otel

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracing owns a tracer provider built from Config
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Option customizes Setup
type Option func(*setupOptions)

type setupOptions struct {
	out      io.Writer
	exporter sdktrace.SpanExporter
	syncer   bool
}

// WithWriter sets the destination of the stdout exporter
func WithWriter(w io.Writer) Option {
	return func(o *setupOptions) { o.out = w }
}

// WithExporter replaces the exporter selected by Config.Exporter.
// Spans are exported synchronously, which suits tests.
func WithExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *setupOptions) {
		o.exporter = exporter
		o.syncer = true
	}
}

// Setup builds a tracer provider for config
func Setup(ctx context.Context, config Config, opts ...Option) (*Tracing, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing config: %w", err)
	}

	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = newExporter(config, o.out)
		if err != nil {
			return nil, err
		}
	}

	spanOpt := sdktrace.WithBatcher(exporter)
	if o.syncer {
		spanOpt = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		spanOpt,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)

	return &Tracing{
		provider: tp,
		tracer:   tp.Tracer(config.ServiceName),
	}, nil
}

// Tracer returns the tracer of t, or a noop tracer when t is nil
func (t *Tracing) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("noop")
	}
	return t.tracer
}

// Shutdown flushes pending spans and stops the provider
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
