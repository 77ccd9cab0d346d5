package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewTracerFromProvider(provider, "test"), recorder
}

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer func() { _ = shutdown(context.Background()) }()

	if tracer.config.ServiceName != "promptlens" {
		t.Fatalf("ServiceName = %q", tracer.config.ServiceName)
	}
	_, span := tracer.Start(context.Background(), "noop")
	span.End()
}

func TestTraceExperimentCall(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, span := tracer.TraceExperimentCall(context.Background(), "exp-1", 2)
	if GetTraceID(ctx) == "" {
		t.Fatal("expected an active trace id")
	}
	tracer.SetAttributes(span, "promptlens.model", "gpt-4", 42, "ignored")
	tracer.RecordError(span, errors.New("boom"))
	tracer.RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name() != "promptlens.experiment.call" {
		t.Fatalf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Fatalf("status = %v, want error", got.Status().Code)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["promptlens.experiment_id"].AsString() != "exp-1" {
		t.Errorf("experiment_id = %v", attrs["promptlens.experiment_id"])
	}
	if attrs["promptlens.variant_index"].AsInt64() != 2 {
		t.Errorf("variant_index = %v", attrs["promptlens.variant_index"])
	}
	if attrs["promptlens.model"].AsString() != "gpt-4" {
		t.Errorf("model = %v", attrs["promptlens.model"])
	}
}

func TestNilTracerStart(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.Start(context.Background(), "nil")
	span.End()
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Fatalf("GetTraceID() = %q, want empty", id)
	}
}
