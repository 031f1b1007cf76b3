package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openclaw/runtime/internal/config"
)

func TestInitDisabledReturnsNoopTracer(t *testing.T) {
	tracer, shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStartRunSpanRecordsAttributes(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := tp.Tracer(tracerName)

	ctx, span := StartRunSpan(context.Background(), tracer, "run-1", "agent-1")
	EndWithError(span, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Name() != "run" {
		t.Fatalf("expected span name %q, got %q", "run", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Fatalf("expected Ok status, got %v", spans[0].Status().Code)
	}
	_ = ctx
}

func TestEndWithErrorRecordsErrorStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := tp.Tracer(tracerName)

	_, span := StartToolSpan(context.Background(), tracer, "weather", "get_forecast")
	EndWithError(span, errors.New("boom"))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected Error status, got %v", spans[0].Status().Code)
	}
}
