package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("kick-pulse-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing without endpoint: %v", err)
	}
	shutdown() // no-op shutdown must be safe to call
	if IsTracingEnabled() {
		t.Error("tracing reported enabled without an endpoint")
	}
}

func TestStartSpanNoopWhenDisabled(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "http-server", "GET /status",
		attribute.String("http.method", "GET"),
	)
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil ctx or span")
	}
	RecordError(span, errors.New("HTTP 500"))
	RecordError(span, nil) // nil errors are ignored
	span.End()
}
