package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/internal/notes"
	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/core/job/runner"
	"github.com/tigerroll/notepipe/pkg/batch/core/progress"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const modulePipeline = "pipeline"

// PipelineParams defines the dependencies of Pipeline.
type PipelineParams struct {
	fx.In
	Config       *config.Config
	Storage      storageAdapter.StorageConnectionResolver
	Tracker      *progress.ProgressTracker
	Orchestrator *runner.PipelineOrchestrator
	Completion   notes.Completer
	Embedding    notes.Embedder
}

// Pipeline runs the note stages of one run end to end.
type Pipeline struct {
	cfg          *config.Config
	storage      storageAdapter.StorageConnectionResolver
	tracker      *progress.ProgressTracker
	orchestrator *runner.PipelineOrchestrator
	completion   notes.Completer
	embedding    notes.Embedder
}

// NewPipeline creates the Pipeline from its fx dependencies.
func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		cfg:          p.Config,
		storage:      p.Storage,
		tracker:      p.Tracker,
		orchestrator: p.Orchestrator,
		completion:   p.Completion,
		embedding:    p.Embedding,
	}
}

// Result summarizes a pipeline run.
type Result struct {
	RunName    string
	TotalItems int
	Reports    []runner.StageReport
	// Exported is the number of rows written to the parquet dataset; zero when the export
	// is disabled or did not run.
	Exported int
}

// Run enumerates the source notes, initializes the checkpoint of the run and drives every
// stage in order. Stages completed by an earlier invocation are skipped. When FINAL_MERGE
// completes and the export is enabled, the merged notes are written to the parquet dataset.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	pc := p.cfg.Notepipe.Pipeline
	result := &Result{RunName: pc.RunName}

	sourceConn, err := p.storage.ResolveStorageConnection(ctx, pc.SourceStorageRef)
	if err != nil {
		return result, exception.NewConfigurationError(modulePipeline, fmt.Sprintf("cannot open source storage '%s'", pc.SourceStorageRef), err)
	}
	source, err := notes.LoadSource(ctx, sourceConn, pc.SourcePrefix)
	if err != nil {
		return result, err
	}
	result.TotalItems = source.Count()

	if err := p.tracker.Initialize(ctx, source.Count()); err != nil {
		return result, err
	}

	artifactConn, err := p.storage.ResolveStorageConnection(ctx, pc.ArtifactStorageRef)
	if err != nil {
		return result, exception.NewConfigurationError(modulePipeline, fmt.Sprintf("cannot open artifact storage '%s'", pc.ArtifactStorageRef), err)
	}
	artifacts := notes.NewArtifactStore(artifactConn, p.cfg.Notepipe.Checkpoint.Prefix, pc.RunName)

	workers := notes.NewWorkers(source, artifacts, p.completion, p.embedding,
		notes.WithModels(p.cfg.Notepipe.Clients.Completion.Model, p.cfg.Notepipe.Clients.Embedding.Model))

	logger.Infof("Pipeline: run '%s' over %d notes.", pc.RunName, source.Count())
	reports, err := p.orchestrator.RunPipeline(ctx, workers.ByStage(), pc)
	result.Reports = reports
	if err != nil {
		return result, err
	}

	if pc.ExportParquet {
		merged := p.tracker.Snapshot().Stage(model.StageFinalMerge).Processed
		n, err := notes.ExportParquet(ctx, artifacts, merged)
		if err != nil {
			return result, err
		}
		result.Exported = n
	}
	return result, nil
}
