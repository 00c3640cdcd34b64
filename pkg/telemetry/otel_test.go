package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		got := Sampler(tt.ratio).Description()
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("Sampler(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), false, DefaultOTLPConfig("epiflow"))
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "sim.run")
	SetSpanAttributes(ctx, attribute.Int("population", 10))
	RecordError(ctx, errors.New("sink failed"))
	RecordError(ctx, nil)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans, want 1", len(ended))
	}
	if got := len(ended[0].Events()); got != 1 {
		t.Errorf("got %d events, want 1 error event", got)
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "population" && kv.Value.AsInt64() == 10 {
			found = true
		}
	}
	if !found {
		t.Error("population attribute not recorded")
	}
}
