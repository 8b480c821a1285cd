// Package metrics provides the StageListener that feeds a MetricRecorder, and an
// asynchronous MetricRecorder decorator.
package metrics

import (
	"context"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/core/metrics"
)

// MetricsStageListener translates stage events into MetricRecorder calls.
type MetricsStageListener struct {
	recorder metrics.MetricRecorder
}

// NewMetricsStageListener creates a MetricsStageListener reporting to recorder.
func NewMetricsStageListener(recorder metrics.MetricRecorder) *MetricsStageListener {
	return &MetricsStageListener{recorder: recorder}
}

func (l *MetricsStageListener) BeforeStage(ctx context.Context, stage model.Stage) {
	l.recorder.RecordStageStart(ctx, stage)
}

func (l *MetricsStageListener) BeforeChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID) {
	l.recorder.RecordChunk(ctx, stage, len(ids))
}

// AfterChunk records one item observation per settled item. Interrupted items are not counted.
func (l *MetricsStageListener) AfterChunk(ctx context.Context, stage model.Stage, summary port.ChunkSummary) {
	for i := 0; i < summary.Succeeded; i++ {
		l.recorder.RecordItem(ctx, stage, true)
	}
	for i := 0; i < summary.Failed; i++ {
		l.recorder.RecordItem(ctx, stage, false)
	}
}

func (l *MetricsStageListener) OnItemFailure(ctx context.Context, stage model.Stage, id model.ItemID, err error) {
}

func (l *MetricsStageListener) AfterStage(ctx context.Context, stage model.Stage, summary port.StageSummary) {
	l.recorder.RecordStageEnd(ctx, stage, summary.Status, summary.Duration)
}

var _ port.StageListener = (*MetricsStageListener)(nil)
