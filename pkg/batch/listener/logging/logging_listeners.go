// Package logging provides a StageListener that reports stage progress to the log.
package logging

import (
	"context"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// LoggingStageListener logs stage and chunk boundaries and every item failure.
type LoggingStageListener struct{}

// NewLoggingStageListener creates a LoggingStageListener.
func NewLoggingStageListener() *LoggingStageListener {
	return &LoggingStageListener{}
}

func (l *LoggingStageListener) BeforeStage(ctx context.Context, stage model.Stage) {
	logger.Infof("StageListener: BeforeStage - Stage: %s", stage)
}

func (l *LoggingStageListener) BeforeChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID) {
	logger.Debugf("StageListener: BeforeChunk - Stage: %s, Chunk: %d, Items: %v", stage, index, ids)
}

func (l *LoggingStageListener) AfterChunk(ctx context.Context, stage model.Stage, summary port.ChunkSummary) {
	logger.Infof("StageListener: AfterChunk - Stage: %s, Chunk: %d, Succeeded: %d, Failed: %d, Interrupted: %d, Duration: %v",
		stage, summary.Index, summary.Succeeded, summary.Failed, summary.Interrupted, summary.Duration)
}

func (l *LoggingStageListener) OnItemFailure(ctx context.Context, stage model.Stage, id model.ItemID, err error) {
	logger.Warnf("StageListener: OnItemFailure - Stage: %s, Item: %s, Error: %v", stage, id, err)
}

// AfterStage logs the outcome at Info level when the stage completed and at Warn level otherwise.
func (l *LoggingStageListener) AfterStage(ctx context.Context, stage model.Stage, summary port.StageSummary) {
	if summary.Status == model.StatusCompleted {
		logger.Infof("StageListener: AfterStage - Stage: %s, Status: %s, Processed: %d, Failed: %d, Complete: %.2f%%, Duration: %v",
			stage, summary.Status, summary.Processed, summary.Failed, summary.PercentComplete, summary.Duration)
		return
	}
	logger.Warnf("StageListener: AfterStage - Stage: %s, Status: %s, Processed: %d, Failed: %d, Complete: %.2f%%, Duration: %v, Error: %v",
		stage, summary.Status, summary.Processed, summary.Failed, summary.PercentComplete, summary.Duration, summary.Err)
}

var _ port.StageListener = (*LoggingStageListener)(nil)
