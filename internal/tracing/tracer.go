// Package tracing wires the Runtime's spans into OpenTelemetry, replacing
// the teacher's custom ParentTraceID/trace-span fields (internal/agent/
// loop.go) with the real OTel SDK the teacher already depends on. One span
// per run and one span per tool call, grounded on nevindra-oasis/observer's
// Init/Shutdown provider-setup shape, generalized to choose between an OTLP
// gRPC and an OTLP HTTP exporter per config.TelemetryConfig.Protocol.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/runtime/internal/config"
)

const tracerName = "github.com/openclaw/runtime"

// Tracer is the narrow span-creation surface the rest of the Runtime uses,
// so executor/broker code never imports the OTel SDK directly — only
// trace.Tracer, which the noop provider below also satisfies when tracing
// is disabled.
type Tracer = trace.Tracer

// Init builds the process-wide TracerProvider from cfg and returns a Tracer
// plus a shutdown func to call on process exit. When cfg.Enabled is false,
// the returned Tracer is OTel's global no-op implementation and the
// shutdown func is a no-op — callers don't need to branch on cfg.Enabled
// themselves.
func Init(ctx context.Context, cfg config.TelemetryConfig) (Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		return otel.Tracer(tracerName), func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "openclaw-runtime"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(tracerName), tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default: // "grpc" and any unrecognized value — matches config.Default()'s "grpc" default
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// StartRunSpan opens one span per run, per spec.md §4.1's run lifecycle.
func StartRunSpan(ctx context.Context, tracer Tracer, runID, coordinatorAgentID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("agent.id", coordinatorAgentID),
		),
	)
}

// StartTaskSpan opens one span per delegated task, nested under its
// parent's span via ctx, per spec.md §4.2's delegate_to_agent recursion.
func StartTaskSpan(ctx context.Context, tracer Tracer, taskID, agentID string, depth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("agent.id", agentID),
			attribute.Int("task.depth", depth),
		),
	)
}

// StartToolSpan opens one span per tool invocation, per spec.md §4.4's
// Plugin Execution Guard wrapping.
func StartToolSpan(ctx context.Context, tracer Tracer, pluginID, toolName string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("tool.name", toolName)}
	if pluginID != "" {
		attrs = append(attrs, attribute.String("plugin.id", pluginID))
	}
	return tracer.Start(ctx, "tool_call", trace.WithAttributes(attrs...))
}

// EndWithError records err on span (if non-nil) and sets the span status
// accordingly before ending it. Callers defer this immediately after the
// Start* call that produced span.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
