package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
)

// OTelMetricRecorder is an OpenTelemetry Metrics implementation of metrics.MetricRecorder.
type OTelMetricRecorder struct {
	stageRuns     metric.Int64Counter
	stageDuration metric.Float64Histogram
	items         metric.Int64Counter
	chunkSize     metric.Int64Histogram
	retries       metric.Int64Counter
	rateLimitWait metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on a meter of provider.
func NewOTelMetricRecorder(provider metric.MeterProvider) (*OTelMetricRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelMetricRecorder{}
	var err error
	if r.stageRuns, err = meter.Int64Counter("notepipe.stage.runs",
		metric.WithDescription("Stage runs started.")); err != nil {
		return nil, err
	}
	if r.stageDuration, err = meter.Float64Histogram("notepipe.stage.duration",
		metric.WithDescription("Duration of stage runs."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.items, err = meter.Int64Counter("notepipe.items",
		metric.WithDescription("Items settled by stage and outcome.")); err != nil {
		return nil, err
	}
	if r.chunkSize, err = meter.Int64Histogram("notepipe.chunk.size",
		metric.WithDescription("Ids handed to the batch runner per chunk.")); err != nil {
		return nil, err
	}
	if r.retries, err = meter.Int64Counter("notepipe.client.retries",
		metric.WithDescription("Retried external calls.")); err != nil {
		return nil, err
	}
	if r.rateLimitWait, err = meter.Float64Histogram("notepipe.client.rate_limit_wait",
		metric.WithDescription("Suspensions imposed by a client's token budget."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func stageAttr(stage model.Stage) attribute.KeyValue {
	return attribute.String("stage", stage.String())
}

func (r *OTelMetricRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {
	r.stageRuns.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
}

func (r *OTelMetricRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
	r.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(stageAttr(stage), attribute.String("status", status.String())))
}

func (r *OTelMetricRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool) {
	outcome := "failed"
	if success {
		outcome = "processed"
	}
	r.items.Add(ctx, 1, metric.WithAttributes(stageAttr(stage), attribute.String("outcome", outcome)))
}

func (r *OTelMetricRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int) {
	r.chunkSize.Record(ctx, int64(size), metric.WithAttributes(stageAttr(stage)))
}

func (r *OTelMetricRecorder) RecordRetry(ctx context.Context, client string, reason string) {
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("client", client), attribute.String("reason", reason)))
}

func (r *OTelMetricRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
	r.rateLimitWait.Record(ctx, waited.Seconds(), metric.WithAttributes(attribute.String("client", client)))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
