package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

func newResource(cfg config.OTelConfig) (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)))
}

// NewSDKTracerProvider creates a batching TracerProvider exporting over OTLP using the
// configured protocol ("http" or "grpc").
func NewSDKTracerProvider(ctx context.Context, cfg config.OTelConfig) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, exception.NewConfigurationError("otel", "unsupported OTLP protocol '"+cfg.Protocol+"'", nil)
	}
	if err != nil {
		return nil, exception.NewConfigurationError("otel", "failed to create trace exporter", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, exception.NewConfigurationError("otel", "failed to build resource", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// NewSDKMeterProvider creates a MeterProvider that pushes to OTLP every
// ExportIntervalSeconds using the configured protocol.
func NewSDKMeterProvider(ctx context.Context, cfg config.OTelConfig) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, exception.NewConfigurationError("otel", "unsupported OTLP protocol '"+cfg.Protocol+"'", nil)
	}
	if err != nil {
		return nil, exception.NewConfigurationError("otel", "failed to create metric exporter", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, exception.NewConfigurationError("otel", "failed to build resource", err)
	}
	interval := time.Duration(cfg.ExportIntervalSeconds) * time.Second
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	), nil
}
