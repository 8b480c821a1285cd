// Package progress tracks per-stage, per-item progress of a pipeline run and persists it
// through a repository.CheckpointStore.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleName = "tracker"

var errNotInitialized = errors.New("progress tracker is not initialized")

// Option configures a ProgressTracker.
type Option func(*ProgressTracker)

// WithClock replaces time.Now as the source of recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *ProgressTracker) { t.now = now }
}

// WithFlushMode selects when item settlements are persisted. Stage transitions always persist.
func WithFlushMode(mode config.FlushMode) Option {
	return func(t *ProgressTracker) { t.flushMode = mode }
}

// ProgressTracker owns the CheckpointMetadata of one run.
//
// All mutations are serialized by a single mutex and, in per-item flush mode, the in-memory
// update and the Save happen inside the same critical section, so concurrent workers cannot
// lose each other's settlements.
type ProgressTracker struct {
	store     repository.CheckpointStore
	now       func() time.Time
	flushMode config.FlushMode

	mu    sync.Mutex
	meta  *model.CheckpointMetadata
	dirty bool
}

// NewProgressTracker creates a tracker over store. Initialize must be called before use.
func NewProgressTracker(store repository.CheckpointStore, opts ...Option) *ProgressTracker {
	t := &ProgressTracker{
		store:     store,
		now:       time.Now,
		flushMode: config.FlushPerItem,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize loads the checkpoint, or creates and persists a fresh one when none exists.
// If the stored totalItems differs from totalItems, it is corrected and re-persisted while
// all settled ids are kept.
//
// Any failure here is a ConfigurationError: no stage can run without a usable checkpoint.
func (t *ProgressTracker) Initialize(ctx context.Context, totalItems int) error {
	if totalItems < 0 {
		return exception.NewConfigurationError(moduleName, "totalItems must not be negative", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	meta, err := t.store.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrCheckpointNotFound):
		meta = model.NewCheckpointMetadata(totalItems, t.now())
		if err := t.store.Save(ctx, meta); err != nil {
			return exception.NewConfigurationError(moduleName, "failed to create checkpoint", err)
		}
		logger.Infof("ProgressTracker: created new checkpoint for %d items.", totalItems)
	case err != nil:
		return exception.NewConfigurationError(moduleName, "failed to load checkpoint", err)
	default:
		if err := meta.Validate(); err != nil {
			return exception.NewConfigurationError(moduleName, "stored checkpoint is invalid", err)
		}
		if meta.TotalItems != totalItems {
			logger.Warnf("ProgressTracker: totalItems changed from %d to %d; keeping recorded progress.", meta.TotalItems, totalItems)
			meta.TotalItems = totalItems
			meta.LastUpdated = t.now()
			if err := t.store.Save(ctx, meta); err != nil {
				return exception.NewConfigurationError(moduleName, "failed to persist corrected totalItems", err)
			}
		} else {
			logger.Infof("ProgressTracker: resumed checkpoint with %d items.", totalItems)
		}
	}

	t.meta = meta
	t.dirty = false
	return nil
}

// StartStage moves stage to IN_PROGRESS, recording startTime and clearing any prior error.
// Calling it on a stage that is already IN_PROGRESS changes nothing. A COMPLETED stage
// cannot be started again.
func (t *ProgressTracker) StartStage(ctx context.Context, stage model.Stage) error {
	return t.mutate(ctx, stage, true, func(p *model.StageProgress, now time.Time) (bool, error) {
		if !p.Status.CanStart() {
			return false, exception.NewStageFailure(moduleName, "cannot start stage '"+stage.String()+"' from status "+p.Status.String(), nil)
		}
		if p.Status == model.StatusInProgress {
			return false, nil
		}
		p.Status = model.StatusInProgress
		p.StartTime = &now
		p.CompletionTime = nil
		p.Error = ""
		logger.Infof("ProgressTracker: stage '%s' started.", stage)
		return true, nil
	})
}

// UpdateItemProgress settles id as processed (success) or failed.
// An id that is already settled keeps its original outcome; only lastProcessedTime moves.
// It is safe to call from concurrent workers.
func (t *ProgressTracker) UpdateItemProgress(ctx context.Context, stage model.Stage, id model.ItemID, success bool) error {
	return t.mutate(ctx, stage, false, func(p *model.StageProgress, now time.Time) (bool, error) {
		if int(id) < 0 || int(id) >= t.meta.TotalItems {
			return false, exception.NewStageFailure(moduleName, fmt.Sprintf("item %s is outside 0..%d", id, t.meta.TotalItems-1), nil)
		}
		if !p.IsSettled(id) {
			if success {
				p.Processed.Add(id)
			} else {
				p.Failed.Add(id)
			}
		}
		p.LastProcessedTime = &now
		return true, nil
	})
}

// CompleteStage marks stage COMPLETED and records completionTime.
// It does not check that every item is settled; the caller asserts completion.
func (t *ProgressTracker) CompleteStage(ctx context.Context, stage model.Stage) error {
	return t.mutate(ctx, stage, true, func(p *model.StageProgress, now time.Time) (bool, error) {
		switch p.Status {
		case model.StatusCompleted:
			return false, nil
		case model.StatusInProgress:
		default:
			return false, exception.NewStageFailure(moduleName, "cannot complete stage '"+stage.String()+"' from status "+p.Status.String(), nil)
		}
		p.Status = model.StatusCompleted
		p.CompletionTime = &now
		logger.Infof("ProgressTracker: stage '%s' completed (%d processed, %d failed).", stage, len(p.Processed), len(p.Failed))
		return true, nil
	})
}

// FailStage marks an IN_PROGRESS stage FAILED with message. Failing a FAILED stage again
// changes nothing. Settled ids are retained so a later StartStage resumes where the stage
// stopped.
func (t *ProgressTracker) FailStage(ctx context.Context, stage model.Stage, message string) error {
	return t.mutate(ctx, stage, true, func(p *model.StageProgress, now time.Time) (bool, error) {
		switch p.Status {
		case model.StatusFailed:
			return false, nil
		case model.StatusInProgress:
		default:
			return false, exception.NewStageFailure(moduleName, "cannot fail stage '"+stage.String()+"' from status "+p.Status.String(), nil)
		}
		p.Status = model.StatusFailed
		p.Error = message
		logger.Errorf("ProgressTracker: stage '%s' failed: %s", stage, message)
		return true, nil
	})
}

// Flush persists pending settlements. It is a no-op when nothing changed since the last save.
func (t *ProgressTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil {
		return exception.NewStageFailure(moduleName, "flush failed", errNotInitialized)
	}
	if !t.dirty {
		return nil
	}
	return t.persist(ctx)
}

// NextPendingItem returns the lowest id in 0..totalItems-1 that is settled in neither set.
func (t *ProgressTracker) NextPendingItem(stage model.Stage) (model.ItemID, bool) {
	ids := t.PendingItems(stage, 1)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// PendingItems returns up to limit unsettled ids in ascending order.
func (t *ProgressTracker) PendingItems(stage model.Stage, limit int) []model.ItemID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil || limit <= 0 {
		return nil
	}
	p := t.meta.Stage(stage)
	var ids []model.ItemID
	for i := 0; i < t.meta.TotalItems && len(ids) < limit; i++ {
		id := model.ItemID(i)
		if !p.IsSettled(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// PercentComplete returns |processed| / totalItems * 100. Failed ids are not counted, so a
// stage with failures stays below 100 even when nothing is pending. Ids left over from a
// larger totalItems are not counted either, so the result stays within 0..100.
func (t *ProgressTracker) PercentComplete(stage model.Stage) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil || t.meta.TotalItems == 0 {
		return 0
	}
	return float64(t.meta.Stage(stage).Processed.CountBelow(t.meta.TotalItems)) / float64(t.meta.TotalItems) * 100
}

// Status returns the current status of stage.
func (t *ProgressTracker) Status(stage model.Stage) model.StageStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil {
		return model.StatusNotStarted
	}
	return t.meta.Stage(stage).Status
}

// Snapshot returns a deep copy of the current document.
func (t *ProgressTracker) Snapshot() *model.CheckpointMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil {
		return nil
	}
	return t.meta.Clone()
}

// mutate applies fn to the progress of stage under the lock. When fn reports a change, the
// document is marked dirty and persisted if forced or in per-item mode.
func (t *ProgressTracker) mutate(ctx context.Context, stage model.Stage, force bool, fn func(*model.StageProgress, time.Time) (bool, error)) error {
	if !stage.Valid() {
		return exception.NewStageFailure(moduleName, "unknown stage", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil {
		return exception.NewStageFailure(moduleName, "cannot update stage '"+stage.String()+"'", errNotInitialized)
	}

	now := t.now()
	changed, err := fn(t.meta.Stage(stage), now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	t.meta.LastUpdated = now
	t.dirty = true
	if force || t.flushMode != config.FlushPerChunk {
		return t.persist(ctx)
	}
	return nil
}

// persist saves the document. The save is detached from ctx cancellation so an in-flight
// settlement still reaches the store during a graceful shutdown. Callers hold t.mu.
func (t *ProgressTracker) persist(ctx context.Context) error {
	if err := t.store.Save(context.WithoutCancel(ctx), t.meta); err != nil {
		return exception.NewStageFailure(moduleName, "failed to persist checkpoint", err)
	}
	t.dirty = false
	return nil
}
