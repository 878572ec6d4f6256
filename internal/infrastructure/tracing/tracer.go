// Package tracing provides OpenTelemetry-based tracing for sync runs.
// It supports stdout and OTLP exporters and provides span helpers for runs,
// orchestrator phases and per-activity transfers.
package tracing

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the activitysync tracer.
	TracerName = "github.com/jbctechsolutions/activitysync"

	// Version is the semantic version of the tracer.
	Version = "1.0.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "activitysync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// Default returns a no-op tracer.
func Default() *Tracer {
	return &Tracer{
		tracer: noop.NewTracerProvider().Tracer(TracerName),
		config: DefaultConfig(),
	}
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// --- Sync span helpers ---

// RunSpan represents a whole sync run.
type RunSpan struct {
	span trace.Span
}

// StartRunSpan starts the root span of a sync run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID string, dryRun bool) (context.Context, *RunSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Bool("run.dry_run", dryRun),
		),
	)

	return ctx, &RunSpan{span: span}
}

// SetWindow records the sync window the run covers.
func (rs *RunSpan) SetWindow(since, until time.Time) {
	rs.span.SetAttributes(
		attribute.String("run.since", since.UTC().Format(time.RFC3339)),
		attribute.String("run.until", until.UTC().Format(time.RFC3339)),
	)
}

// SetCounts records the run summary.
func (rs *RunSpan) SetCounts(candidates, duplicates, transferred, skipped int) {
	rs.span.SetAttributes(
		attribute.Int("run.candidates", candidates),
		attribute.Int("run.duplicates", duplicates),
		attribute.Int("run.transferred", transferred),
		attribute.Int("run.skipped", skipped),
	)
}

// End ends the run span with success status.
func (rs *RunSpan) End() {
	rs.span.SetStatus(codes.Ok, "run completed")
	rs.span.End()
}

// EndWithError ends the run span with error status.
func (rs *RunSpan) EndWithError(err error) {
	rs.span.RecordError(err)
	rs.span.SetStatus(codes.Error, err.Error())
	rs.span.End()
}

// PhaseSpan represents one orchestrator phase (authenticate, list, filter, transfer, persist).
type PhaseSpan struct {
	span trace.Span
}

// StartPhaseSpan starts a span for an orchestrator phase.
func (t *Tracer) StartPhaseSpan(ctx context.Context, phase string) (context.Context, *PhaseSpan) {
	ctx, span := t.tracer.Start(ctx, "sync."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("phase.name", phase)),
	)

	return ctx, &PhaseSpan{span: span}
}

// SetCount records how many items the phase produced.
func (ps *PhaseSpan) SetCount(key string, n int) {
	ps.span.SetAttributes(attribute.Int("phase."+key, n))
}

// End ends the phase span with success status.
func (ps *PhaseSpan) End() {
	ps.span.SetStatus(codes.Ok, "phase completed")
	ps.span.End()
}

// EndWithError ends the phase span with error status.
func (ps *PhaseSpan) EndWithError(err error) {
	ps.span.RecordError(err)
	ps.span.SetStatus(codes.Error, err.Error())
	ps.span.End()
}

// TransferSpan represents the download and upload of one activity.
type TransferSpan struct {
	span trace.Span
}

// StartTransferSpan starts a span for a single activity transfer.
func (t *Tracer) StartTransferSpan(ctx context.Context, activityID string, startTime time.Time) (context.Context, *TransferSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.transfer",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("activity.id", activityID),
			attribute.String("activity.start_time", startTime.UTC().Format(time.RFC3339)),
		),
	)

	return ctx, &TransferSpan{span: span}
}

// SetResult records the outcome of the transfer.
func (ts *TransferSpan) SetResult(outcome string, attempts int, bytes int) {
	ts.span.SetAttributes(
		attribute.String("transfer.outcome", outcome),
		attribute.Int("transfer.attempts", attempts),
		attribute.Int("transfer.bytes", bytes),
	)
}

// End ends the transfer span with success status.
func (ts *TransferSpan) End() {
	ts.span.SetStatus(codes.Ok, "transfer completed")
	ts.span.End()
}

// EndWithError ends the transfer span with error status.
func (ts *TransferSpan) EndWithError(err error) {
	ts.span.RecordError(err)
	ts.span.SetStatus(codes.Error, err.Error())
	ts.span.End()
}

// RecordRetry adds a retry event to the span in ctx.
func RecordRetry(ctx context.Context, operation string, attempt int, delay time.Duration, err error) {
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.String("retry.operation", operation),
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
		attribute.String("retry.error", err.Error()),
	))
}

// RecordError records an error on the span in ctx without changing its status.
func RecordError(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
}
