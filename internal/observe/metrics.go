// Package observe holds the engine's telemetry: OpenTelemetry metric
// instruments, session-aware tracing and logging helpers, the HTTP
// middleware and the SDK setup that exports metrics to Prometheus.
//
// Production code records through [DefaultMetrics], which binds to the global
// meter provider installed by [InitProvider]. Tests build their own
// [Metrics] with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Pavna06/Yogi.AI"

// Metrics holds every instrument the engine records to. Instruments are safe
// for concurrent use.
type Metrics struct {
	// ── Frame pipeline ──

	// FrameDuration is the time spent evaluating one landmark frame.
	FrameDuration metric.Float64Histogram

	// Frames counts processed frames by "outcome":
	// scored, hold, unframed, idle or empty.
	Frames metric.Int64Counter

	// PoseAccuracy records the accuracy of scored frames by "pose".
	PoseAccuracy metric.Float64Histogram

	// BreathingRate records defined breathing estimates.
	BreathingRate metric.Float64Histogram

	// ── Speech ──

	// TTSDuration is per-backend synthesis latency by "provider".
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts synthesis calls by "provider" and "status"
	// (ok, error, cancelled).
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed synthesis calls by "provider".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts breaker state changes by "provider" and the
	// new "state".
	BreakerTransitions metric.Int64Counter

	// FeedbackDecisions counts feedback items offered for narration by
	// "decision": narrated, affirming, analyzing, repeat, failed or closed.
	FeedbackDecisions metric.Int64Counter

	// ClipsPlayed counts clips handed to the player by "status".
	ClipsPlayed metric.Int64Counter

	// QueueDepth is the number of clips waiting for playback.
	QueueDepth metric.Int64UpDownCounter

	// ── Server ──

	// ActiveSessions is the number of live coaching sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is request latency by mux "route" and "status".
	HTTPRequestDuration metric.Float64Histogram
}

var (
	// Speech backends are network bound.
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

	// Frame work must stay well under one video frame (33ms at 30fps).
	frameBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033}

	accuracyBuckets  = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}
	breathingBuckets = []float64{4, 6, 8, 10, 12, 16, 20, 25, 30, 40, 60}
)

// instruments creates instruments on one meter and collects their errors.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) histogram(name, desc, unit string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(unit)}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		FrameDuration: b.histogram("yogi.frame.duration", "Time to evaluate one landmark frame.", "s", frameBuckets),
		Frames:        b.counter("yogi.frames", "Landmark frames processed by outcome."),
		PoseAccuracy:  b.histogram("yogi.pose.accuracy", "Pose accuracy of scored frames.", "%", accuracyBuckets),
		BreathingRate: b.histogram("yogi.breathing.rate", "Estimated breathing rate.", "{breath}/min", breathingBuckets),

		TTSDuration:        b.histogram("yogi.tts.duration", "Latency of text-to-speech synthesis.", "s", latencyBuckets),
		ProviderRequests:   b.counter("yogi.provider.requests", "Speech synthesis calls by provider and status."),
		ProviderErrors:     b.counter("yogi.provider.errors", "Failed speech synthesis calls by provider."),
		BreakerTransitions: b.counter("yogi.provider.breaker.transitions", "Circuit breaker state changes by provider and new state."),
		FeedbackDecisions:  b.counter("yogi.feedback.decisions", "Feedback items offered for narration by decision."),
		ClipsPlayed:        b.counter("yogi.clips.played", "Clips handed to the player by status."),
		QueueDepth:         b.gauge("yogi.queue.depth", "Clips waiting for playback."),

		ActiveSessions:      b.gauge("yogi.active_sessions", "Number of live coaching sessions."),
		HTTPRequestDuration: b.histogram("yogi.http.request.duration", "HTTP request latency by mux route and status code.", "s", nil),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], created on first use
// from [otel.GetMeterProvider]. Call [InitProvider] with Global set before
// the first call, or instruments bind to the no-op provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame records one processed frame. Accuracy is recorded only for
// scored frames.
func (m *Metrics) RecordFrame(ctx context.Context, pose, outcome string, accuracy float64, d time.Duration) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.FrameDuration.Record(ctx, d.Seconds())
	if outcome == "scored" {
		m.PoseAccuracy.Record(ctx, accuracy, metric.WithAttributes(attribute.String("pose", pose)))
	}
}

// RecordSynthesis records one call to a speech backend. A call cut short by
// its context is counted as cancelled, not as a provider error.
func (m *Metrics) RecordSynthesis(ctx context.Context, provider string, d time.Duration, err error) {
	byProvider := attribute.String("provider", provider)
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	default:
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(byProvider))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(byProvider, attribute.String("status", status)))
	m.TTSDuration.Record(ctx, d.Seconds(), metric.WithAttributes(byProvider))
}

// RecordBreakerTransition counts a speech backend breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", state),
	))
}

// RecordFeedbackDecision counts one feedback item by decision.
func (m *Metrics) RecordFeedbackDecision(ctx context.Context, decision string) {
	m.FeedbackDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordClipPlayed counts one finished clip.
func (m *Metrics) RecordClipPlayed(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ClipsPlayed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
