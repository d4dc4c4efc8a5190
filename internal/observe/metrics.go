// Package observe provides application-wide observability primitives for
// hemma: OpenTelemetry metrics, per-turn tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hemma metrics.
const meterName = "github.com/MrWong99/hemma"

// Pipeline stages reported by [Metrics.RecordStage].
const (
	StageTranscribe = "transcribe"
	StageClassify   = "classify"
	StageDispatch   = "dispatch"
	StageSpeak      = "speak"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the time from an accepted transcript to the end of
	// the spoken result.
	TurnDuration metric.Float64Histogram

	// StageDuration tracks per-stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Loop counters ---

	// Phrases counts phrases flushed by the segmenter.
	Phrases metric.Int64Counter

	// Transcripts counts transcription outcomes. Use with attribute:
	//   attribute.String("outcome", "ok"|"empty"|"error")
	Transcripts metric.Int64Counter

	// WakeDecisions counts wake-word gate decisions. Use with attribute:
	//   attribute.Bool("accepted", ...)
	WakeDecisions metric.Int64Counter

	// Directives counts classified directives. Use with attribute:
	//   attribute.String("kind", ...)
	Directives metric.Int64Counter

	// TurnFailures counts turns whose action or playback failed. Use with
	// attribute:
	//   attribute.String("stage", ...)
	TurnFailures metric.Int64Counter

	// ClassifierDegradations counts directives that fell back to NoAction.
	// Use with attribute:
	//   attribute.String("reason", ...)
	ClassifierDegradations metric.Int64Counter

	// DroppedFrames counts audio frames dropped because the segmenter queue
	// was full.
	DroppedFrames metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-loop latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("hemma.turn.duration",
		metric.WithDescription("Latency of a full turn from accepted transcript to spoken result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("hemma.stage.duration",
		metric.WithDescription("Latency of a single voice-loop stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("hemma.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Phrases, err = m.Int64Counter("hemma.phrases",
		metric.WithDescription("Total phrases flushed by the segmenter."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("hemma.transcripts",
		metric.WithDescription("Total transcription attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.WakeDecisions, err = m.Int64Counter("hemma.wake.decisions",
		metric.WithDescription("Total wake-word gate decisions."),
	); err != nil {
		return nil, err
	}
	if met.Directives, err = m.Int64Counter("hemma.directives",
		metric.WithDescription("Total classified directives by kind."),
	); err != nil {
		return nil, err
	}
	if met.TurnFailures, err = m.Int64Counter("hemma.turn.failures",
		metric.WithDescription("Total failed turns by stage."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierDegradations, err = m.Int64Counter("hemma.intent.degradations",
		metric.WithDescription("Total classifier results degraded to NoAction by reason."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("hemma.audio.dropped_frames",
		metric.WithDescription("Total audio frames dropped on a full segmenter queue."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("hemma.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("hemma.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("hemma.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hemma.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordTranscript counts a transcription outcome.
func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWake counts a wake-word gate decision.
func (m *Metrics) RecordWake(ctx context.Context, accepted bool) {
	m.WakeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

// RecordDirective counts a classified directive.
func (m *Metrics) RecordDirective(ctx context.Context, kind string) {
	m.Directives.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTurnFailure counts a turn that failed at stage.
func (m *Metrics) RecordTurnFailure(ctx context.Context, stage string) {
	m.TurnFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDegradation counts a classifier result that fell back to NoAction.
func (m *Metrics) RecordDegradation(ctx context.Context, reason string) {
	m.ClassifierDegradations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordToolCall records a tool call counter increment and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition counts a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
