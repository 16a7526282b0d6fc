// Package observability implements the ambient tracing and metrics
// stack spec.md's §6 ambient-concerns expansion calls for: OpenTelemetry
// spans around the agentic loop, tool execution, and LLM calls, plus
// Prometheus exposition. Narrowed from the teacher's
// internal/observability (multi-channel message/webhook/database
// tracing across Telegram/Discord/Slack) down to this system's actual
// surfaces: HTTP, the agentic loop, tool execution, LLM calls, and TTS
// synthesis.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with this system's span helpers.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures the tracer. An empty Endpoint disables export
// entirely and Start returns no-op spans, so tracing is always safe to
// wire in regardless of whether an OTLP collector is configured.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	SamplingRate   float64
	EnableInsecure bool
}

// SpanOptions configures one span's kind and attributes.
type SpanOptions struct {
	Kind       trace.SpanKind
	Attributes []attribute.KeyValue
}

// NewTracer builds a Tracer and a shutdown func that must be called on
// exit. If cfg.Endpoint is empty or the exporter fails to construct, a
// no-op tracer is returned rather than an error — tracing degrades
// gracefully, it never blocks startup.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "jarvis"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)},
		func(ctx context.Context) error { return provider.Shutdown(ctx) }
}

// Start opens a span and returns the context carrying it.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	var options []trace.SpanStartOption
	if len(opts) > 0 {
		if opts[0].Kind != 0 {
			options = append(options, trace.WithSpanKind(opts[0].Kind))
		}
		if len(opts[0].Attributes) > 0 {
			options = append(options, trace.WithAttributes(opts[0].Attributes...))
		}
	}
	return t.tracer.Start(ctx, name, options...)
}

// RecordError marks a span as failed.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceAgentLoop spans one agentic-loop iteration for a session.
func (t *Tracer) TraceAgentLoop(ctx context.Context, sessionID string, iteration int) (context.Context, trace.Span) {
	return t.Start(ctx, "agent.loop", SpanOptions{
		Kind: trace.SpanKindInternal,
		Attributes: []attribute.KeyValue{
			attribute.String("session_id", sessionID),
			attribute.Int("iteration", iteration),
		},
	})
}

// TraceLLMRequest spans one provider call.
func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("llm.%s", provider), SpanOptions{
		Kind:       trace.SpanKindClient,
		Attributes: []attribute.KeyValue{attribute.String("llm.provider", provider), attribute.String("llm.model", model)},
	})
}

// TraceToolExecution spans one tool invocation.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("tool.%s", toolName), SpanOptions{
		Kind:       trace.SpanKindInternal,
		Attributes: []attribute.KeyValue{attribute.String("tool.name", toolName)},
	})
}

// TraceTTSSynthesis spans one synthesis call against an engine.
func (t *Tracer) TraceTTSSynthesis(ctx context.Context, engine string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("tts.%s", engine), SpanOptions{
		Kind:       trace.SpanKindClient,
		Attributes: []attribute.KeyValue{attribute.String("tts.engine", engine)},
	})
}

// TraceHTTPRequest spans one inbound HTTP request.
func (t *Tracer) TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("http.%s %s", method, path), SpanOptions{
		Kind:       trace.SpanKindServer,
		Attributes: []attribute.KeyValue{attribute.String("http.method", method), attribute.String("http.path", path)},
	})
}
