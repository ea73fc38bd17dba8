// Package observe provides application-wide observability primitives for
// Maya: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Maya metrics.
const meterName = "github.com/guardianvoice/maya"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks how long it takes to bring a session from
	// Connecting to Connected.
	ConnectDuration metric.Float64Histogram

	// TurnDuration tracks the wall-clock length of one conversational turn,
	// measured from the first transcript fragment to turn completion.
	TurnDuration metric.Float64Histogram

	// Messages counts finalized messages. Use with attribute:
	//   attribute.String("role", ...)
	Messages metric.Int64Counter

	// FlaggedEvents counts safety flags raised for guardian review. Use with
	// attribute: attribute.String("severity", ...)
	FlaggedEvents metric.Int64Counter

	// AudioChunksIn counts inbound synthesised audio chunks.
	AudioChunksIn metric.Int64Counter

	// AudioChunksOut counts outbound capture frames sent to the provider.
	AudioChunksOut metric.Int64Counter

	// DecodeFailures counts inbound chunks skipped because they could not
	// be decoded.
	DecodeFailures metric.Int64Counter

	// Interruptions counts user barge-ins that discarded pending model audio.
	Interruptions metric.Int64Counter

	// TransportErrors counts mid-session transport failures. Use with
	// attribute: attribute.String("provider", ...)
	TransportErrors metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (0 or 1 per
	// controller).
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks admin HTTP request processing time. Use
	// with attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for realtime voice latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("maya.session.connect.duration",
		metric.WithDescription("Latency from connect start to backend acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("maya.session.turn.duration",
		metric.WithDescription("Wall-clock length of one conversational turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Messages, err = m.Int64Counter("maya.messages",
		metric.WithDescription("Total finalized messages by role."),
	); err != nil {
		return nil, err
	}
	if met.FlaggedEvents, err = m.Int64Counter("maya.flagged_events",
		metric.WithDescription("Total safety flags by severity."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksIn, err = m.Int64Counter("maya.audio.chunks_in",
		metric.WithDescription("Total inbound synthesised audio chunks."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksOut, err = m.Int64Counter("maya.audio.chunks_out",
		metric.WithDescription("Total outbound capture frames."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("maya.audio.decode_failures",
		metric.WithDescription("Total inbound chunks skipped as undecodable."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("maya.session.interruptions",
		metric.WithDescription("Total user barge-ins."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("maya.session.transport_errors",
		metric.WithDescription("Total mid-session transport failures by provider."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("maya.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("maya.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
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

// RecordMessage records one finalized message.
func (m *Metrics) RecordMessage(ctx context.Context, role string) {
	m.Messages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordFlaggedEvent records one safety flag.
func (m *Metrics) RecordFlaggedEvent(ctx context.Context, severity string) {
	m.FlaggedEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("severity", severity)),
	)
}

// RecordTransportError records one mid-session transport failure.
func (m *Metrics) RecordTransportError(ctx context.Context, provider string) {
	m.TransportErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
