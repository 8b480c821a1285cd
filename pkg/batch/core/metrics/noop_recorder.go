package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {}
func (r *NoOpMetricRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool)  {}
func (r *NoOpMetricRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int)     {}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, client string, reason string)    {}
func (r *NoOpMetricRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartStageSpan(ctx context.Context, stage model.Stage) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, stage model.Stage, chunk int, size int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
