package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel, err := New(Config{Enabled: true, Service: "shortener-test"},
		WithTracerProvider(tp),
		WithMeterProvider(mp),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		mp.Shutdown(context.Background())
	})
	return tel, recorder, reader
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed for disabled telemetry: %v", err)
	}
	if tel.config.Service != DefaultService {
		t.Errorf("expected default service name, got %q", tel.config.Service)
	}

	ctx, span := tel.Tracer().Start(context.Background(), "test")
	if span == nil {
		t.Fatal("Expected non-nil span even when telemetry is disabled")
	}
	// These should not panic
	RecordError(ctx, errors.New("error"))
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestTelemetry_Accessors(t *testing.T) {
	tel, _, _ := newRecordingTelemetry(t)

	if tel.Tracer() == nil {
		t.Error("Expected non-nil tracer")
	}
	if tel.Meter() == nil {
		t.Error("Expected non-nil meter")
	}
}

func TestTelemetry_Spans(t *testing.T) {
	tel, recorder, _ := newRecordingTelemetry(t)

	ctx, span := tel.Tracer().Start(context.Background(), "allocate")
	SetAttributes(ctx, attribute.Int("attempts", 3))
	AddEvent(ctx, "collision", attribute.Int("length", 6))
	RecordError(ctx, errors.New("store unavailable"))

	if ExtractTraceID(ctx) == "" {
		t.Error("expected trace ID inside span")
	}
	if len(LogAttrs(ctx)) != 2 {
		t.Error("expected trace and span log attributes")
	}
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "allocate" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status())
	}
	if len(got.Events()) != 2 { // collision + exception
		t.Errorf("expected 2 events, got %d", len(got.Events()))
	}
}

func TestOutsideSpan(t *testing.T) {
	ctx := context.Background()
	if ExtractTraceID(ctx) != "" {
		t.Error("expected empty trace ID")
	}
	if LogAttrs(ctx) != nil {
		t.Error("expected no log attributes")
	}
	// Should not panic without a span
	RecordError(ctx, errors.New("test error"))
	AddEvent(ctx, "event")
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, sdktrace.AlwaysSample().Description()},
		{1, sdktrace.AlwaysSample().Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestMiddleware_WrapHTTP(t *testing.T) {
	tel, recorder, reader := newRecordingTelemetry(t)
	m, err := tel.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Use(NewMiddleware(tel, m).WrapHTTP)
	r.Get("/api/stats/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Continue an incoming trace
	parent, parentSpan := tel.Tracer().Start(context.Background(), "client")
	req := httptest.NewRequest(http.MethodGet, "/api/stats/abc123", nil)
	propagation.TraceContext{}.Inject(parent, propagation.HeaderCarrier(req.Header))
	parentSpan.End()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	if got := rec.Header().Get("X-Trace-ID"); got != parentSpan.SpanContext().TraceID().String() {
		t.Errorf("X-Trace-ID = %q, want the incoming trace", got)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	stats := spans[1]
	if stats.Name() != "GET /api/stats/{code}" {
		t.Errorf("span name = %q", stats.Name())
	}
	if stats.Parent().TraceID() != spans[0].SpanContext().TraceID() {
		t.Error("expected server span to continue the incoming trace")
	}
	if stats.Status().Code == codes.Error {
		t.Error("4xx must not mark the span failed")
	}
	if spans[2].Status().Code != codes.Error {
		t.Error("5xx must mark the span failed")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var requests int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "http.server.requests" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", metric.Data)
			}
			for _, dp := range sum.DataPoints {
				requests += dp.Value
			}
		}
	}
	if requests != 2 {
		t.Errorf("expected 2 recorded requests, got %d", requests)
	}
}
