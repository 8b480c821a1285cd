package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// MultiRecorder fans every call out to several recorders.
type MultiRecorder []MetricRecorder

// NewMultiRecorder returns a MultiRecorder over the non-nil recorders.
func NewMultiRecorder(recorders ...MetricRecorder) MultiRecorder {
	out := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m MultiRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {
	for _, r := range m {
		r.RecordStageStart(ctx, stage)
	}
}

func (m MultiRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
	for _, r := range m {
		r.RecordStageEnd(ctx, stage, status, duration)
	}
}

func (m MultiRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool) {
	for _, r := range m {
		r.RecordItem(ctx, stage, success)
	}
}

func (m MultiRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int) {
	for _, r := range m {
		r.RecordChunk(ctx, stage, size)
	}
}

func (m MultiRecorder) RecordRetry(ctx context.Context, client string, reason string) {
	for _, r := range m {
		r.RecordRetry(ctx, client, reason)
	}
}

func (m MultiRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
	for _, r := range m {
		r.RecordRateLimitWait(ctx, client, waited)
	}
}

var _ MetricRecorder = MultiRecorder(nil)
