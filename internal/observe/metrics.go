// Package observe provides the observability primitives for earshot:
// OpenTelemetry metrics, tracing, trace-aware logging and the HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format through the exporter bridge set up by [InitProvider].
// Tests should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Drop reasons recorded on [Metrics.FragmentsDropped].
const (
	DropEmpty      = "empty"
	DropBadBase64  = "bad_base64"
	DropQueueFull  = "queue_full"
	DropDecode     = "decode_error"
	DropSchedule   = "schedule_error"
	DropOutputGone = "output_closed"
)

// Metrics holds all OpenTelemetry instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// --- Audio pipeline ---

	// FragmentsReceived counts audio fragments addressed to this client.
	FragmentsReceived metric.Int64Counter

	// FragmentsDropped counts fragments that never reached the output. Use
	// with attribute.String("reason", ...).
	FragmentsDropped metric.Int64Counter

	// DecodeDuration tracks container decode latency.
	DecodeDuration metric.Float64Histogram

	// ScheduleLag tracks how far ahead of the audio clock each unit was
	// scheduled, i.e. the queued backlog at scheduling time.
	ScheduleLag metric.Float64Histogram

	// --- Transport & protocol ---

	// ConnectionAttempts counts dials. Use with
	// attribute.String("result", "open"|"failed").
	ConnectionAttempts metric.Int64Counter

	// Messages counts received envelopes. Use with
	// attribute.String("kind", ...), attribute.String("result", ...).
	Messages metric.Int64Counter

	// ConnectionState records the current connectivity status
	// (0 disconnected, 1 connected, 2 speaking).
	ConnectionState metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// decodeBuckets are histogram boundaries (seconds) for per-fragment decode
// time, which is normally well under a millisecond.
var decodeBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// lagBuckets are histogram boundaries (seconds) for the playback backlog.
var lagBuckets = []float64{
	0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Audio pipeline.
	if met.FragmentsReceived, err = m.Int64Counter("earshot.fragments.received",
		metric.WithDescription("Total audio fragments addressed to this client."),
	); err != nil {
		return nil, err
	}
	if met.FragmentsDropped, err = m.Int64Counter("earshot.fragments.dropped",
		metric.WithDescription("Total audio fragments dropped before playback, by reason."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("earshot.decode.duration",
		metric.WithDescription("Latency of decoding one audio container."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScheduleLag, err = m.Float64Histogram("earshot.schedule.lag",
		metric.WithDescription("Queued playback ahead of the audio clock when a unit is scheduled."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lagBuckets...),
	); err != nil {
		return nil, err
	}

	// Transport & protocol.
	if met.ConnectionAttempts, err = m.Int64Counter("earshot.connection.attempts",
		metric.WithDescription("Total stream connection attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("earshot.messages",
		metric.WithDescription("Total received envelopes by kind and dispatch result."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionState, err = m.Int64Gauge("earshot.connection.state",
		metric.WithDescription("Current connectivity status: 0 disconnected, 1 connected, 2 speaking."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments are bound to the exporting provider.
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

// RecordFragmentDropped increments the dropped-fragment counter for reason.
func (m *Metrics) RecordFragmentDropped(ctx context.Context, reason string) {
	m.FragmentsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordMessage increments the envelope counter.
func (m *Metrics) RecordMessage(ctx context.Context, kind, result string) {
	m.Messages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("result", result),
		),
	)
}

// RecordConnectionAttempt increments the connection attempt counter.
func (m *Metrics) RecordConnectionAttempt(ctx context.Context, opened bool) {
	result := "failed"
	if opened {
		result = "open"
	}
	m.ConnectionAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
