package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	logger "github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// ProviderParams defines the dependencies of the observability providers.
type ProviderParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// NewTracerProviderFromConfig returns an OTLP-exporting TracerProvider when OpenTelemetry is
// enabled and a no-op provider otherwise. The SDK provider is flushed when the app stops.
func NewTracerProviderFromConfig(p ProviderParams) (trace.TracerProvider, error) {
	cfg := p.Config.Notepipe.Metrics.OTel
	if !cfg.Enabled {
		return tracenoop.NewTracerProvider(), nil
	}
	tp, err := NewSDKTracerProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Metrics: exporting traces over OTLP/%s to %s.", cfg.Protocol, cfg.Endpoint)
	return tp, nil
}

// NewMeterProviderFromConfig is the metrics counterpart of NewTracerProviderFromConfig.
func NewMeterProviderFromConfig(p ProviderParams) (metric.MeterProvider, error) {
	cfg := p.Config.Notepipe.Metrics.OTel
	if !cfg.Enabled {
		return metricnoop.NewMeterProvider(), nil
	}
	mp, err := NewSDKMeterProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: mp.Shutdown})
	logger.Infof("Metrics: exporting metrics over OTLP/%s to %s.", cfg.Protocol, cfg.Endpoint)
	return mp, nil
}

// NewTracer provides the OpenTelemetry tracer when enabled, and a no-op tracer otherwise.
func NewTracer(cfg *config.Config, tp trace.TracerProvider) metrics.Tracer {
	if !cfg.Notepipe.Metrics.OTel.Enabled {
		return metrics.NewNoOpTracer()
	}
	return NewOpenTelemetryTracer(tp)
}

// NewMetricRecorder combines the enabled backends. With none enabled it returns a no-op recorder.
// The Prometheus endpoint is served for the lifetime of the app.
func NewMetricRecorder(p ProviderParams, mp metric.MeterProvider) (metrics.MetricRecorder, error) {
	cfg := p.Config.Notepipe.Metrics
	var recorders []metrics.MetricRecorder

	if cfg.Prometheus.Enabled {
		prom := NewPrometheusRecorder()
		server := NewMetricsServer(cfg.Prometheus, prom)
		p.Lifecycle.Append(fx.Hook{OnStart: server.Start, OnStop: server.Stop})
		recorders = append(recorders, prom)
	}
	if cfg.OTel.Enabled {
		otelRec, err := NewOTelMetricRecorder(mp)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, otelRec)
	}

	if len(recorders) == 0 {
		logger.Debugf("Metrics: no backend enabled, using no-op recorder.")
		return metrics.NewNoOpMetricRecorder(), nil
	}
	return metrics.NewMultiRecorder(recorders...), nil
}

// Module provides the MetricRecorder and Tracer implementations selected by configuration.
var Module = fx.Options(
	fx.Provide(
		NewTracerProviderFromConfig,
		NewMeterProviderFromConfig,
		NewTracer,
		NewMetricRecorder,
	),
)
