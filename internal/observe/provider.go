package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing the bridge instance.
const (
	AttrAudioMode   = attribute.Key("sa818.audio.mode")
	AttrAudioFormat = attribute.Key("sa818.audio.format")
	AttrRadioPort   = attribute.Key("sa818.radio.port")
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "sa818bridge".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// AudioMode is the bridge pump ("direct" or "engine").
	AudioMode string

	// AudioFormat is the stream format, e.g. "8000Hz/16bit/1ch".
	AudioFormat string

	// RadioPort is the AT serial port. Empty when the radio is disabled.
	RadioPort string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// newResource describes this bridge: service identity plus the audio and
// radio setup.
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sa818bridge"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.AudioMode != "" {
		attrs = append(attrs, AttrAudioMode.String(cfg.AudioMode))
	}
	if cfg.AudioFormat != "" {
		attrs = append(attrs, AttrAudioFormat.String(cfg.AudioFormat))
	}
	if cfg.RadioPort != "" {
		attrs = append(attrs, AttrRadioPort.String(cfg.RadioPort))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// InitProvider initialises the OTel SDK and registers the providers
// globally:
//
//   - A [sdkmetric.MeterProvider] with a Prometheus exporter behind
//     [MetricsHandler].
//   - A [sdktrace.TracerProvider] batching to cfg.TraceExporter, if set.
//
// The returned function flushes and closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

// MetricsHandler serves the Prometheus registry that the exporter installed by
// [InitProvider] writes to.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
