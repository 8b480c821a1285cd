package progress

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
)

// NewProgressTrackerProvider creates the ProgressTracker of the current run, using the
// configured flush mode.
func NewProgressTrackerProvider(store repository.CheckpointStore, cfg *config.Config) *ProgressTracker {
	return NewProgressTracker(store, WithFlushMode(cfg.Notepipe.Pipeline.FlushMode))
}

// Module provides the ProgressTracker.
var Module = fx.Provide(NewProgressTrackerProvider)
