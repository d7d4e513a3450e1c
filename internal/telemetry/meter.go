package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultMetricsInterval is the push interval of the OTLP exporter
const DefaultMetricsInterval = 60 * time.Second

// NewMeterProvider creates a meter provider for the configured exporter. With the
// prometheus exporter the returned handler serves the scrape endpoint; it is nil
// otherwise. A no-op provider is returned when metrics are disabled.
func NewMeterProvider(ctx context.Context, opts ...ProviderOption) (metric.MeterProvider, http.Handler, error) {
	cfg := newProviderConfig(opts)

	if cfg.metricsConfig == nil || !cfg.metricsConfig.Enabled {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil, nil
	}

	res, err := cfg.newResource(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)
	switch exporter := cfg.metricsConfig.GetExporter(); exporter {
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = promExporter
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case ExporterOTLP:
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.endpoint)}
		if cfg.insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		otlpExporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(DefaultMetricsInterval))
	default:
		return nil, nil, fmt.Errorf("unsupported metrics exporter: %s", exporter)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"exporter", cfg.metricsConfig.GetExporter(),
		"endpoint", cfg.endpoint,
		"insecure", cfg.insecure,
	)

	return mp, handler, nil
}
