// Package runner drives pipeline stages to completion over the checkpointed item set.
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/core/progress"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/partition"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleName = "orchestrator"

// StageConfig holds the caller-supplied settings of one stage run.
type StageConfig struct {
	BatchSize        int
	ConcurrencyLimit int
}

// Validate checks both values against their allowed ranges.
func (c StageConfig) Validate() error {
	if c.BatchSize < config.MinBatchSize || c.BatchSize > config.MaxBatchSize {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("batchSize must be in %d..%d, got %d", config.MinBatchSize, config.MaxBatchSize, c.BatchSize), nil)
	}
	if c.ConcurrencyLimit < config.MinConcurrencyLimit || c.ConcurrencyLimit > config.MaxConcurrencyLimit {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("concurrencyLimit must be in %d..%d, got %d", config.MinConcurrencyLimit, config.MaxConcurrencyLimit, c.ConcurrencyLimit), nil)
	}
	return nil
}

// ItemFailure is one failed item of a stage run.
type ItemFailure struct {
	ID      model.ItemID
	Message string
}

// StageReport is the user-visible outcome of a stage run.
type StageReport struct {
	Stage model.Stage
	// Processed counts the items that succeeded during this run.
	Processed int
	// Failures lists the items that failed during this run, in ascending id order.
	Failures []ItemFailure
	// Skipped is set when the stage was already COMPLETED and nothing ran.
	Skipped bool
}

// PipelineOrchestrator runs stage workers over the pending items of a ProgressTracker.
type PipelineOrchestrator struct {
	tracker   *progress.ProgressTracker
	runner    *partition.BoundedBatchRunner
	listeners port.StageListener
	now       func() time.Time
}

// NewPipelineOrchestrator creates an orchestrator. The tracker must be initialized before a
// stage is run.
//
// Parameters:
//
//	tracker: The progress tracker holding the checkpoint of the current run.
//	runner: The batch runner executing each chunk.
//	listeners: Observers notified of stage and chunk boundaries; may be empty.
//
// Returns:
//
//	A new PipelineOrchestrator.
func NewPipelineOrchestrator(tracker *progress.ProgressTracker, runner *partition.BoundedBatchRunner, listeners []port.StageListener) *PipelineOrchestrator {
	return &PipelineOrchestrator{
		tracker:   tracker,
		runner:    runner,
		listeners: port.CompositeStageListener(listeners),
		now:       time.Now,
	}
}

// RunStage drives stage until no item is pending, then marks it COMPLETED.
//
// Item failures are recorded and reported in the StageReport; they never stop the stage.
// Any other error (the checkpoint cannot be persisted, an invariant is violated) marks the
// stage FAILED and is returned as a StageFailure together with the partial report.
// When ctx is cancelled no new chunk is submitted and ctx.Err() is returned; the stage stays
// IN_PROGRESS and items whose worker was interrupted stay pending.
// A stage that is already COMPLETED is not run again.
func (o *PipelineOrchestrator) RunStage(ctx context.Context, stage model.Stage, worker partition.Worker, cfg StageConfig) (StageReport, error) {
	report := StageReport{Stage: stage}
	if err := cfg.Validate(); err != nil {
		return report, err
	}
	if o.tracker.Status(stage).IsTerminal() {
		logger.Infof("Orchestrator: stage '%s' already completed, skipping.", stage)
		report.Skipped = true
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	started := o.now()
	if err := o.tracker.StartStage(ctx, stage); err != nil {
		return report, o.fail(ctx, stage, &report, started, err)
	}
	o.listeners.BeforeStage(ctx, stage)
	logger.Infof("Orchestrator: running stage '%s' (batch size %d, concurrency %d).", stage, cfg.BatchSize, cfg.ConcurrencyLimit)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return report, o.interrupt(ctx, stage, &report, started, err)
		}
		ids := o.tracker.PendingItems(stage, cfg.BatchSize)
		if len(ids) == 0 {
			break
		}
		if err := o.runChunk(ctx, stage, index, ids, worker, cfg.ConcurrencyLimit, &report); err != nil {
			if exception.IsCancellation(err) {
				return report, o.interrupt(ctx, stage, &report, started, err)
			}
			return report, o.fail(ctx, stage, &report, started, err)
		}
	}

	if err := o.tracker.CompleteStage(ctx, stage); err != nil {
		return report, o.fail(ctx, stage, &report, started, err)
	}
	o.listeners.AfterStage(ctx, stage, o.summary(stage, model.StatusCompleted, &report, started, nil))
	logger.Infof("Orchestrator: stage '%s' completed: %d processed, %d failed.", stage, report.Processed, len(report.Failures))
	return report, nil
}

// runChunk runs one chunk and flushes the tracker. A non-nil error is either a cancellation
// error or the first fatal tracker error raised while settling an item.
func (o *PipelineOrchestrator) runChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID, worker partition.Worker, limit int, report *StageReport) error {
	o.listeners.BeforeChunk(ctx, stage, index, ids)
	chunkStarted := o.now()

	// A fatal tracker error stops the launch of further workers in this chunk.
	chunkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		fatalOnce sync.Once
		fatal     error
	)

	abort := func(err error) {
		fatalOnce.Do(func() {
			fatal = err
			cancel()
		})
	}

	settle := func(wctx context.Context, id model.ItemID) error {
		err := worker(wctx, id)
		if err != nil && wctx.Err() != nil && exception.IsCancellation(err) {
			return err
		}
		// A worker reports a condition outside its item this way; the item stays pending.
		if exception.IsStageFailure(err) || exception.IsConfigurationError(err) {
			abort(err)
			return err
		}
		if uerr := o.tracker.UpdateItemProgress(wctx, stage, id, err == nil); uerr != nil {
			abort(uerr)
			return uerr
		}
		if err != nil {
			o.listeners.OnItemFailure(wctx, stage, id, err)
		}
		return err
	}

	result, err := o.runner.Run(chunkCtx, ids, limit, settle)
	if err != nil {
		return err
	}
	if fatal != nil {
		return fatal
	}

	report.Processed += len(result.Succeeded)
	for id, ferr := range result.Failed {
		report.Failures = append(report.Failures, ItemFailure{ID: id, Message: exception.ExtractErrorMessage(ferr)})
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].ID < report.Failures[j].ID })

	if err := o.tracker.Flush(ctx); err != nil {
		return err
	}

	o.listeners.AfterChunk(ctx, stage, port.ChunkSummary{
		Index:       index,
		IDs:         ids,
		Succeeded:   len(result.Succeeded),
		Failed:      len(result.Failed),
		Interrupted: len(result.Interrupted),
		Duration:    o.now().Sub(chunkStarted),
	})

	if len(result.Interrupted) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if result.Attempted() == 0 {
		return exception.NewStageFailure(moduleName, fmt.Sprintf("chunk %d of stage '%s' settled no item", index, stage), nil)
	}
	return nil
}

// fail records cause via FailStage and returns it as a StageFailure.
func (o *PipelineOrchestrator) fail(ctx context.Context, stage model.Stage, report *StageReport, started time.Time, cause error) error {
	err := cause
	if !exception.IsStageFailure(err) {
		err = exception.NewStageFailure(moduleName, fmt.Sprintf("stage '%s' failed", stage), cause)
	}
	if ferr := o.tracker.FailStage(ctx, stage, exception.ExtractErrorMessage(cause)); ferr != nil {
		logger.Errorf("Orchestrator: could not record failure of stage '%s': %v", stage, ferr)
	}
	o.listeners.AfterStage(ctx, stage, o.summary(stage, model.StatusFailed, report, started, err))
	return err
}

// interrupt flushes what was settled before cancellation and leaves the stage IN_PROGRESS.
func (o *PipelineOrchestrator) interrupt(ctx context.Context, stage model.Stage, report *StageReport, started time.Time, cause error) error {
	logger.Warnf("Orchestrator: stage '%s' interrupted: %v", stage, cause)
	if ferr := o.tracker.Flush(ctx); ferr != nil {
		logger.Errorf("Orchestrator: could not flush stage '%s' after interruption: %v", stage, ferr)
	}
	o.listeners.AfterStage(ctx, stage, o.summary(stage, model.StatusInProgress, report, started, cause))
	if err := ctx.Err(); err != nil {
		return err
	}
	return cause
}

func (o *PipelineOrchestrator) summary(stage model.Stage, status model.StageStatus, report *StageReport, started time.Time, err error) port.StageSummary {
	return port.StageSummary{
		Status:          status,
		Processed:       report.Processed,
		Failed:          len(report.Failures),
		PercentComplete: o.tracker.PercentComplete(stage),
		Duration:        o.now().Sub(started),
		Err:             err,
	}
}

// RunPipeline runs every stage in the fixed order, using the per-stage settings of cfg.
// Completed stages are skipped, so a rerun resumes at the first unfinished stage. It stops at
// the first error and returns the reports of the stages run so far.
func (o *PipelineOrchestrator) RunPipeline(ctx context.Context, workers map[model.Stage]partition.Worker, cfg config.PipelineConfig) ([]StageReport, error) {
	for _, stage := range model.AllStages() {
		if workers[stage] == nil {
			return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("no worker registered for stage '%s'", stage), nil)
		}
	}

	var reports []StageReport
	for _, stage := range model.AllStages() {
		batchSize, concurrency := cfg.StageSettings(stage.String())
		report, err := o.RunStage(ctx, stage, workers[stage], StageConfig{BatchSize: batchSize, ConcurrencyLimit: concurrency})
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
