package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/bountyboard/backend/internal/config"
)

// ShutdownFunc flushes and stops the meter provider.
type ShutdownFunc func(ctx context.Context) error

// Init installs an OTLP gRPC meter provider as the global provider. With no
// endpoint configured the global no-op provider is left in place.
func Init(ctx context.Context, cfg config.Telemetry, service string, log *slog.Logger) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		log.Info("telemetry disabled: no otlp endpoint")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	res := resource.NewSchemaless(attribute.String("service.name", service))
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	log.Info("telemetry enabled", "endpoint", cfg.OTLPEndpoint, "interval", interval)
	return mp.Shutdown, nil
}

// HTTPMiddleware wraps handlers with otelhttp instrumentation.
func HTTPMiddleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service)
	}
}
