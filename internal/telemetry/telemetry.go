package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultService names the instrumentation scope when none is configured
const DefaultService = "shortener"

// Config holds telemetry configuration
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Version string `yaml:"version"`

	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Endpoint     string            `yaml:"endpoint"`
	Headers      map[string]string `yaml:"headers"`
	SampleRate   float64           `yaml:"sampleRate"`
	MaxBatchSize int               `yaml:"maxBatchSize"`
	BatchTimeout int               `yaml:"batchTimeout"` // seconds
}

// MetricsConfig enables the OpenTelemetry meter, exported through the
// Prometheus registry served on the metrics path
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Telemetry manages OpenTelemetry providers
type Telemetry struct {
	config     Config
	tracer     trace.Tracer
	meter      metric.Meter
	shutdown   []func(context.Context) error
	resource   *resource.Resource
	propagator propagation.TextMapPropagator
}

// Option overrides a provider, mainly for tests
type Option func(*providers)

type providers struct {
	tracer trace.TracerProvider
	meter  metric.MeterProvider
}

// WithTracerProvider uses tp instead of building an OTLP exporter
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *providers) { p.tracer = tp }
}

// WithMeterProvider uses mp instead of building a Prometheus exporter
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *providers) { p.meter = mp }
}

// New creates a new telemetry instance
func New(config Config, opts ...Option) (*Telemetry, error) {
	if config.Service == "" {
		config.Service = DefaultService
	}

	var p providers
	for _, opt := range opts {
		opt(&p)
	}

	t := &Telemetry{
		config:   config,
		shutdown: make([]func(context.Context) error, 0),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	if !config.Enabled {
		// No-op providers unless a test injected its own
		t.tracer = tracerProvider(p.tracer).Tracer(config.Service)
		t.meter = meterProvider(p.meter).Meter(config.Service)
		return t, nil
	}

	if err := t.initResource(); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	switch {
	case p.tracer != nil:
		t.tracer = p.tracer.Tracer(config.Service)
	case config.Tracing.Enabled:
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	default:
		t.tracer = otel.GetTracerProvider().Tracer(config.Service)
	}

	switch {
	case p.meter != nil:
		t.meter = p.meter.Meter(config.Service)
	case config.Metrics.Enabled:
		if err := t.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	default:
		t.meter = otel.GetMeterProvider().Meter(config.Service)
	}

	otel.SetTextMapPropagator(t.propagator)

	return t, nil
}

func tracerProvider(tp trace.TracerProvider) trace.TracerProvider {
	if tp != nil {
		return tp
	}
	return otel.GetTracerProvider()
}

func meterProvider(mp metric.MeterProvider) metric.MeterProvider {
	if mp != nil {
		return mp
	}
	return otel.GetMeterProvider()
}

// initResource creates the OpenTelemetry resource
func (t *Telemetry) initResource() error {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(t.config.Service),
		semconv.ServiceVersion(t.config.Version),
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	t.resource = res
	return nil
}

// initTracing initializes the OTLP tracing provider
func (t *Telemetry) initTracing() error {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(time.Second * 30),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  time.Minute,
		}),
	}

	if t.config.Tracing.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(t.config.Tracing.Endpoint))
	}

	if len(t.config.Tracing.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Tracing.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if t.config.Tracing.MaxBatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(t.config.Tracing.MaxBatchSize))
	}
	if t.config.Tracing.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(time.Duration(t.config.Tracing.BatchTimeout)*time.Second))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(t.resource),
		sdktrace.WithSampler(Sampler(t.config.Tracing.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	t.tracer = tp.Tracer(t.config.Service)
	t.shutdown = append(t.shutdown, tp.Shutdown)

	return nil
}

// Sampler samples the given fraction of traces. Rates outside (0, 1) sample
// everything.
func Sampler(rate float64) sdktrace.Sampler {
	if rate > 0 && rate < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
	return sdktrace.AlwaysSample()
}

// initMetrics initializes the meter provider behind the Prometheus exporter
func (t *Telemetry) initMetrics() error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(t.resource),
	)

	otel.SetMeterProvider(mp)
	t.meter = mp.Meter(t.config.Service)
	t.shutdown = append(t.shutdown, mp.Shutdown)

	return nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Shutdown flushes and stops the providers this instance created
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RecordError records err on the span in ctx and marks it failed
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LogAttrs returns the trace and span IDs of ctx as slog attributes, or nil
// outside a sampled span
func LogAttrs(ctx context.Context) []any {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []any{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}
