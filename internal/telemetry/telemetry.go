// Package telemetry wires OpenTelemetry tracing for the tool-call
// pipeline: an OTLP/HTTP exporter behind a batching tracer provider,
// plus span helpers used by the scheduler.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "toolgate"

// ShutdownFunc flushes and shuts down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// Init installs a global tracer provider exporting OTLP over HTTP to
// the given endpoint (host:port). The returned shutdown function must
// be called before process exit. An empty endpoint installs nothing
// and returns a no-op shutdown, so tracing stays opt-in.
func Init(ctx context.Context, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "toolgate"),
		)),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// StartCheckSpan starts a span for one policy evaluation.
func StartCheckSpan(ctx context.Context, callID, toolName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "policy.check",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.String("call.tool", toolName),
		),
	)
}

// StartExecuteSpan starts a span for one tool execution.
func StartExecuteSpan(ctx context.Context, callID, toolName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.String("call.tool", toolName),
		),
	)
}
