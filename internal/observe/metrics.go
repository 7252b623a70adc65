// Package observe provides application-wide observability primitives for
// Klaxon: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Klaxon metrics.
const meterName = "github.com/MrWong99/klaxon"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ChunkDuration tracks wall-clock processing time of one audio chunk
	// through the full pipeline.
	ChunkDuration metric.Float64Histogram

	// ChunksProcessed counts processed audio chunks. Use with attribute:
	//   Attr("pipeline", ...)
	ChunksProcessed metric.Int64Counter

	// PeaksDetected counts spectral peaks surviving the frequency filter.
	PeaksDetected metric.Int64Counter

	// ToneEvents counts completed tone events emitted by the generator.
	ToneEvents metric.Int64Counter

	// PatternMatches counts confirmed pattern matches. Use with attribute:
	//   Attr("profile", ...)
	PatternMatches metric.Int64Counter

	// InputErrors counts rejected chunks (length or rate mismatch).
	InputErrors metric.Int64Counter

	// ActivePipelines tracks the number of running detection pipelines.
	ActivePipelines metric.Int64UpDownCounter
}

// chunkBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-chunk DSP latencies.
var chunkBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunkDuration, err = m.Float64Histogram("klaxon.chunk.duration",
		metric.WithDescription("Wall-clock time to process one audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ChunksProcessed, err = m.Int64Counter("klaxon.chunks.processed",
		metric.WithDescription("Total audio chunks processed by pipeline."),
	); err != nil {
		return nil, err
	}
	if met.PeaksDetected, err = m.Int64Counter("klaxon.peaks.detected",
		metric.WithDescription("Total relevant spectral peaks after filtering."),
	); err != nil {
		return nil, err
	}
	if met.ToneEvents, err = m.Int64Counter("klaxon.tone.events",
		metric.WithDescription("Total completed tone events."),
	); err != nil {
		return nil, err
	}
	if met.PatternMatches, err = m.Int64Counter("klaxon.pattern.matches",
		metric.WithDescription("Total confirmed pattern matches by profile."),
	); err != nil {
		return nil, err
	}
	if met.InputErrors, err = m.Int64Counter("klaxon.input.errors",
		metric.WithDescription("Total rejected audio chunks."),
	); err != nil {
		return nil, err
	}

	if met.ActivePipelines, err = m.Int64UpDownCounter("klaxon.active_pipelines",
		metric.WithDescription("Number of running detection pipelines."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordMatch records a confirmed pattern match for the given profile.
func (m *Metrics) RecordMatch(ctx context.Context, profile string) {
	m.PatternMatches.Add(ctx, 1, metric.WithAttributes(Attr("profile", profile)))
}

// RecordChunk records a processed chunk and its pipeline latency.
func (m *Metrics) RecordChunk(ctx context.Context, pipeline string, seconds float64) {
	attrs := metric.WithAttributes(Attr("pipeline", pipeline))
	m.ChunksProcessed.Add(ctx, 1, attrs)
	m.ChunkDuration.Record(ctx, seconds, attrs)
}
