// Package port defines the extension points through which the pipeline engine reports to
// the outside world.
package port

import (
	"context"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// ChunkSummary describes one chunk handed to the batch runner.
type ChunkSummary struct {
	// Index is the 0-based position of the chunk within the stage run.
	Index       int
	IDs         []model.ItemID
	Succeeded   int
	Failed      int
	Interrupted int
	Duration    time.Duration
}

// StageSummary describes the end of a stage run.
type StageSummary struct {
	Status          model.StageStatus
	Processed       int // Items that succeeded during this run.
	Failed          int // Items that failed during this run.
	PercentComplete float64
	Duration        time.Duration
	// Err is the stage failure, or the cancellation cause; nil when the stage completed.
	Err error
}

// StageListener observes stage runs. Calls for one stage run are made from the
// orchestrator goroutine, except OnItemFailure, which is called from worker goroutines.
type StageListener interface {
	// BeforeStage is called after the stage was marked IN_PROGRESS.
	BeforeStage(ctx context.Context, stage model.Stage)
	// BeforeChunk is called before a chunk is handed to the batch runner.
	BeforeChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID)
	// AfterChunk is called once every item of the chunk has an outcome.
	AfterChunk(ctx context.Context, stage model.Stage, summary ChunkSummary)
	// OnItemFailure is called for every item whose worker returned an error.
	OnItemFailure(ctx context.Context, stage model.Stage, id model.ItemID, err error)
	// AfterStage is called when the stage run ends, successfully or not.
	AfterStage(ctx context.Context, stage model.Stage, summary StageSummary)
}

// CompositeStageListener fans every call out to its members in order.
type CompositeStageListener []StageListener

func (c CompositeStageListener) BeforeStage(ctx context.Context, stage model.Stage) {
	for _, l := range c {
		l.BeforeStage(ctx, stage)
	}
}

func (c CompositeStageListener) BeforeChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID) {
	for _, l := range c {
		l.BeforeChunk(ctx, stage, index, ids)
	}
}

func (c CompositeStageListener) AfterChunk(ctx context.Context, stage model.Stage, summary ChunkSummary) {
	for _, l := range c {
		l.AfterChunk(ctx, stage, summary)
	}
}

func (c CompositeStageListener) OnItemFailure(ctx context.Context, stage model.Stage, id model.ItemID, err error) {
	for _, l := range c {
		l.OnItemFailure(ctx, stage, id, err)
	}
}

func (c CompositeStageListener) AfterStage(ctx context.Context, stage model.Stage, summary StageSummary) {
	for _, l := range c {
		l.AfterStage(ctx, stage, summary)
	}
}

var _ StageListener = CompositeStageListener(nil)
