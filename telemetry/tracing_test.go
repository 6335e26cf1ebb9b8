package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("irc-tender-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should stay disabled without an endpoint")
	}
}

func TestLoadTracingOptions(t *testing.T) {
	tests := []struct {
		ratio   string
		want    float64
		wantErr bool
	}{
		{"", 1, false},
		{"0.25", 0.25, false},
		{"0", 0, false},
		{"1.5", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLE_RATIO", tt.ratio)
			opts, err := loadTracingOptions()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadTracingOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && opts.ratio != tt.want {
				t.Errorf("ratio = %v, want %v", opts.ratio, tt.want)
			}
		})
	}
}

func TestStartSpanAddsCorrelation(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "archive.apply", attribute.String("archive", "15.01.01"))
	RecordError(span, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	got := map[attribute.Key]string{}
	for _, kv := range ended[0].Attributes() {
		got[kv.Key] = kv.Value.Emit()
	}
	if got["correlation_id"] != "corr-1" || got["archive"] != "15.01.01" {
		t.Errorf("attributes = %v", got)
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want error", ended[0].Status().Code)
	}
}
