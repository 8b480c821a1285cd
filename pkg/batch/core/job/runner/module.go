package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	"github.com/tigerroll/notepipe/pkg/batch/core/progress"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/partition"
)

// PipelineOrchestratorParams defines dependencies for PipelineOrchestrator.
type PipelineOrchestratorParams struct {
	fx.In
	Tracker   *progress.ProgressTracker
	Runner    *partition.BoundedBatchRunner
	Listeners []port.StageListener `group:"stage_listeners"`
}

// NewOrchestrator provides the PipelineOrchestrator from its fx dependencies.
func NewOrchestrator(p PipelineOrchestratorParams) *PipelineOrchestrator {
	return NewPipelineOrchestrator(p.Tracker, p.Runner, p.Listeners)
}

// Module provides the PipelineOrchestrator.
var Module = fx.Provide(NewOrchestrator)
