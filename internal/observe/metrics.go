// Package observe provides application-wide observability primitives for
// sa818bridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all sa818bridge metrics.
const meterName = "github.com/MrWong99/sa818bridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Streaming engine ---

	// EngineTicks counts processing ticks of the generic streaming engine.
	EngineTicks metric.Int64Counter

	// AudioSamples counts samples moved to the DAC or read from the ADC.
	// Use with attribute.String("direction", "tx"|"rx").
	AudioSamples metric.Int64Counter

	// ConverterErrors counts failed ADC reads and DAC writes. Use with
	// attribute.String("converter", "adc"|"dac").
	ConverterErrors metric.Int64Counter

	// Streaming is 1 while an engine or bridge pump is active.
	Streaming metric.Int64UpDownCounter

	// --- UAC2 bridge ---

	// RingOverflowBytes counts bytes dropped because a ring was full. Use
	// with attribute.String("ring", "tx"|"rx").
	RingOverflowBytes metric.Int64Counter

	// FramesSent counts USB-IN transfers handed to the transport.
	FramesSent metric.Int64Counter

	// SendFailures counts USB-IN transfers the transport rejected.
	SendFailures metric.Int64Counter

	// RejectedTransfers counts USB-OUT transfers refused by GetRecvBuf or
	// DataRecv. Use with attribute.String("reason", ...).
	RejectedTransfers metric.Int64Counter

	// --- Radio control ---

	// ATCommandDuration tracks the round trip of one AT command. Use with
	// attribute.String("command", ...).
	ATCommandDuration metric.Float64Histogram

	// ATCommandErrors counts failed AT commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("kind", ...)
	ATCommandErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// serialBuckets covers 9600 baud exchanges up to the 2 s command timeout.
var serialBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.EngineTicks, err = m.Int64Counter("sa818.engine.ticks",
		metric.WithDescription("Processing ticks of the streaming engine."),
	); err != nil {
		return nil, err
	}
	if met.AudioSamples, err = m.Int64Counter("sa818.audio.samples",
		metric.WithDescription("Samples moved between PCM and the converters by direction."),
	); err != nil {
		return nil, err
	}
	if met.ConverterErrors, err = m.Int64Counter("sa818.converter.errors",
		metric.WithDescription("Failed ADC reads and DAC writes by converter."),
	); err != nil {
		return nil, err
	}
	if met.RingOverflowBytes, err = m.Int64Counter("sa818.ring.overflow",
		metric.WithDescription("Bytes dropped because a bridge ring was full."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("sa818.uac2.frames_sent",
		metric.WithDescription("USB-IN transfers handed to the transport."),
	); err != nil {
		return nil, err
	}
	if met.SendFailures, err = m.Int64Counter("sa818.uac2.send_failures",
		metric.WithDescription("USB-IN transfers the transport rejected."),
	); err != nil {
		return nil, err
	}
	if met.RejectedTransfers, err = m.Int64Counter("sa818.uac2.rejected_transfers",
		metric.WithDescription("USB-OUT transfers refused by the bridge by reason."),
	); err != nil {
		return nil, err
	}
	if met.ATCommandErrors, err = m.Int64Counter("sa818.at.errors",
		metric.WithDescription("Failed AT commands by command and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Streaming, err = m.Int64UpDownCounter("sa818.streaming",
		metric.WithDescription("Number of active streaming pumps."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ATCommandDuration, err = m.Float64Histogram("sa818.at.duration",
		metric.WithDescription("Round trip latency of AT commands."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(serialBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sa818.http.request.duration",
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

// RecordSamples adds n samples for the given direction ("tx" or "rx").
func (m *Metrics) RecordSamples(ctx context.Context, direction string, n int) {
	m.AudioSamples.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordConverterError counts one failed converter access.
func (m *Metrics) RecordConverterError(ctx context.Context, converter string) {
	m.ConverterErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("converter", converter)),
	)
}

// RecordOverflow records n bytes dropped from the named ring.
func (m *Metrics) RecordOverflow(ctx context.Context, ring string, n int) {
	m.RingOverflowBytes.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("ring", ring)),
	)
}

// RecordRejectedTransfer counts one refused USB-OUT transfer.
func (m *Metrics) RecordRejectedTransfer(ctx context.Context, reason string) {
	m.RejectedTransfers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordATCommand records the latency of one AT command and, when kind is
// non-empty, an error of that kind.
func (m *Metrics) RecordATCommand(ctx context.Context, command string, d time.Duration, kind string) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	m.ATCommandDuration.Record(ctx, d.Seconds(), attrs)
	if kind != "" {
		m.ATCommandErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("command", command),
				attribute.String("kind", kind),
			),
		)
	}
}
