package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording pipeline metrics.
//
// It lets the orchestrator and the retry clients report to different backends
// (Prometheus, OpenTelemetry Metrics) without depending on them.
type MetricRecorder interface {
	// RecordStageStart records that a stage run began.
	RecordStageStart(ctx context.Context, stage model.Stage)

	// RecordStageEnd records the end of a stage run.
	//
	// ctx: The context for the operation.
	// stage: The stage that ended.
	// status: The status the stage ended in (COMPLETED or FAILED; IN_PROGRESS when cancelled).
	// duration: Wall time of the run.
	RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration)

	// RecordItem records the settlement of one item.
	RecordItem(ctx context.Context, stage model.Stage, success bool)

	// RecordChunk records that a chunk of size ids was handed to the batch runner.
	RecordChunk(ctx context.Context, stage model.Stage, size int)

	// RecordRetry records a retried external call.
	//
	// ctx: The context for the operation.
	// client: The name of the external client (e.g., "completion").
	// reason: A low-cardinality classification of the error (e.g., "rate_limited").
	RecordRetry(ctx context.Context, client string, reason string)

	// RecordRateLimitWait records a suspension imposed by a client's token budget.
	RecordRateLimitWait(ctx context.Context, client string, waited time.Duration)
}
