package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/config"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// telemetry owns the global trace and meter providers for one runtime.
type telemetry struct {
	traces  *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	metrics http.Handler
}

func setupTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("loqa.translation.provider", providerName(cfg.Translation)),
			attribute.Bool("loqa.stt.enabled", cfg.STT.Enabled),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, name, err := traceExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	t := &telemetry{traces: sdktrace.NewTracerProvider(traceOpts...)}
	otel.SetTracerProvider(t.traces)
	logger.Info("tracing initialized", slog.String("exporter", name))

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader, err := prometheus.New(prometheus.WithRegisterer(registry)); err != nil {
		logger.Warn("prometheus exporter unavailable, metrics not served", slogError(err))
	} else {
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
		t.metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		logger.Info("metrics initialized", slog.String("path", cfg.Telemetry.PrometheusPath))
	}
	t.meters = sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(t.meters)

	return t, nil
}

// traceExporter picks OTLP when an endpoint is set, then stdout, else none.
func traceExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, "", err
		}
		return exporter, "otlp", nil
	}
	if cfg.StdoutTraces {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, "", err
		}
		return exporter, "stdout", nil
	}
	return nil, "none", nil
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.traces.Shutdown(ctx))
}

func providerName(cfg config.TranslationConfig) string {
	if cfg.Provider == "" {
		return "mock"
	}
	return cfg.Provider
}
