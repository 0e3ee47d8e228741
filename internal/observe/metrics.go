// Package observe provides application-wide observability primitives for
// tapvox: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through the Prometheus bridge set up by [Init], so they can be
// scraped from /metrics. [DefaultMetrics] returns a package-level instance;
// tests should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tapvox metrics.
const meterName = "github.com/MrWong99/tapvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel instruments handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks utterance transcription latency.
	STTDuration metric.Float64Histogram

	// LLMFirstPhrase tracks the time from request to the first enqueued
	// phrase, which is what the user perceives as response latency.
	LLMFirstPhrase metric.Float64Histogram

	// LLMDuration tracks the full response stream duration.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks rendering (synthesis plus playback) of one phrase.
	TTSDuration metric.Float64Histogram

	// UtteranceLength tracks the length of finalized utterances in seconds.
	UtteranceLength metric.Float64Histogram

	// --- Counters ---

	// Triggers counts state transitions. Attribute: transition (start|stop).
	Triggers metric.Int64Counter

	// Utterances counts finalized utterances by outcome
	// (responded|empty|no_speech|stt_error).
	Utterances metric.Int64Counter

	// Phrases counts phrases by status (spoken|skipped|failed|interrupted|rejected).
	Phrases metric.Int64Counter

	// BargeIns counts responses interrupted by a new recording.
	BargeIns metric.Int64Counter

	// DroppedFrames counts capture frames dropped because the queue was full.
	DroppedFrames metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ResponsesInFlight tracks responder goroutines currently streaming.
	ResponsesInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// lengthBuckets covers utterances from a short word to a long monologue.
var lengthBuckets = []float64{0.5, 1, 2, 4, 8, 15, 30, 60}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.STTDuration, "tapvox.stt.duration", "Latency of utterance transcription.", latencyBuckets},
		{&met.LLMFirstPhrase, "tapvox.llm.first_phrase", "Time from LLM request to the first speakable phrase.", latencyBuckets},
		{&met.LLMDuration, "tapvox.llm.duration", "Duration of a full LLM response stream.", latencyBuckets},
		{&met.TTSDuration, "tapvox.tts.duration", "Time to render one phrase, playback included.", latencyBuckets},
		{&met.UtteranceLength, "tapvox.utterance.length", "Length of finalized utterances.", lengthBuckets},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Triggers, "tapvox.trigger.transitions", "Trigger state transitions by direction."},
		{&met.Utterances, "tapvox.utterances", "Finalized utterances by outcome."},
		{&met.Phrases, "tapvox.phrases", "Response phrases by delivery status."},
		{&met.BargeIns, "tapvox.barge_ins", "Responses interrupted by a new recording."},
		{&met.DroppedFrames, "tapvox.capture.dropped_frames", "Capture frames dropped on a full queue."},
		{&met.ProviderRequests, "tapvox.provider.requests", "Provider requests by provider, kind, and status."},
		{&met.ProviderErrors, "tapvox.provider.errors", "Provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ResponsesInFlight, err = m.Int64UpDownCounter("tapvox.responses.in_flight",
		metric.WithDescription("Responses currently streaming from the LLM."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("tapvox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTrigger records a trigger transition ("start" or "stop").
func (m *Metrics) RecordTrigger(ctx context.Context, transition string) {
	m.Triggers.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

// RecordUtterance records the outcome of a finalized utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPhrase records the delivery status of a phrase.
func (m *Metrics) RecordPhrase(ctx context.Context, status string) {
	m.Phrases.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
