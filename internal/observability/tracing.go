package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for every span.
const TracerName = "llmgov"

// OTLP transports accepted in TracingConfig.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// TracingConfig contains configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol selects the OTLP transport: "grpc" (default) or "http".
	Protocol       string            `yaml:"protocol"`
	Endpoint       string            `yaml:"endpoint"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	// SampleRate is the fraction of root spans kept. Child spans follow
	// their parent's decision.
	SampleRate float64 `yaml:"sample_rate"`
}

// DefaultTracingConfig returns tracing disabled, pointed at a local collector.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Protocol:       ProtocolGRPC,
		Endpoint:       "localhost:4317",
		Insecure:       true,
		ServiceName:    "llmgov",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}

// TracerProvider owns the SDK provider when tracing is enabled. When it is
// disabled the tracer comes from the global provider and Shutdown is a no-op.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs an OTLP exporting provider as the global one.
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (*otlptrace.Exporter, error) {
	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	case ProtocolGRPC, "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", cfg.Protocol)
	}
}

func newResource(cfg TracingConfig) (*resource.Resource, error) {
	name, version := cfg.ServiceName, cfg.ServiceVersion
	if name == "" {
		name = TracerName
	}
	if version == "" {
		version = "dev"
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	))
}

func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the tracer instance.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// CallSpanAttributes contains the attributes recorded when a call starts.
type CallSpanAttributes struct {
	Backend   string
	Priority  string
	RequestID string
	CacheKey  string
}

// StartCallSpan starts the span covering one orchestrated call.
func StartCallSpan(ctx context.Context, tracer trace.Tracer, attrs CallSpanAttributes) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "llmgov.call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("llmgov.backend", attrs.Backend),
			attribute.String("llmgov.priority", attrs.Priority),
		),
	)
	if attrs.RequestID != "" {
		span.SetAttributes(attribute.String("llmgov.request_id", attrs.RequestID))
	}
	if attrs.CacheKey != "" {
		span.SetAttributes(attribute.String("llmgov.cache_key", attrs.CacheKey))
	}
	return ctx, span
}

// StartAttemptSpan starts a client span for one backend attempt.
func StartAttemptSpan(ctx context.Context, tracer trace.Tracer, backend string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llmgov.backend.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llmgov.backend", backend),
			attribute.Int("llmgov.attempt", attempt),
		),
	)
}

// RecordCallOutcome records how a call was answered.
func RecordCallOutcome(span trace.Span, source, strategy, reason string, attempts int) {
	span.SetAttributes(
		attribute.String("llmgov.source", source),
		attribute.Int("llmgov.attempts", attempts),
	)
	if strategy != "" {
		span.SetAttributes(attribute.String("llmgov.strategy", strategy))
	}
	if reason != "" {
		span.SetAttributes(attribute.String("llmgov.fallback_reason", reason))
	}
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SpanFromContext extracts the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
