package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	domainRepository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

// Run executes the pipeline of the configured run.
func Run(ctx context.Context, o Options) (*Result, error) {
	var (
		pipeline *Pipeline
		result   *Result
	)
	opts := append(o.baseOptions(), PipelineModule, fx.Populate(&pipeline))
	err := withApp(ctx, o, opts, func(ctx context.Context) error {
		var runErr error
		result, runErr = pipeline.Run(ctx)
		return runErr
	})
	return result, err
}

// StageLine is one row of a status report. Counts cover ids below TotalItems and
// PercentComplete counts processed ids only.
type StageLine struct {
	Stage           model.Stage
	Status          model.StageStatus
	Processed       int
	Failed          int
	PercentComplete float64
	Error           string
}

// StatusReport is the progress of a run as recorded in its checkpoint.
type StatusReport struct {
	RunName     string
	Found       bool
	TotalItems  int
	LastUpdated string
	Stages      []StageLine
}

// NewStatusReport summarizes meta. A nil meta yields a report with Found unset.
func NewStatusReport(runName string, meta *model.CheckpointMetadata) *StatusReport {
	report := &StatusReport{RunName: runName}
	if meta == nil {
		return report
	}
	report.Found = true
	report.TotalItems = meta.TotalItems
	report.LastUpdated = meta.LastUpdated.UTC().Format("2006-01-02T15:04:05Z07:00")
	for _, stage := range model.AllStages() {
		sp := meta.Stage(stage)
		line := StageLine{
			Stage:     stage,
			Status:    sp.Status,
			Processed: sp.Processed.CountBelow(meta.TotalItems),
			Failed:    sp.Failed.CountBelow(meta.TotalItems),
			Error:     sp.Error,
		}
		if meta.TotalItems > 0 {
			line.PercentComplete = float64(line.Processed) / float64(meta.TotalItems) * 100
		}
		report.Stages = append(report.Stages, line)
	}
	return report
}

// Status loads the checkpoint of the configured run without modifying it.
func Status(ctx context.Context, o Options) (*StatusReport, error) {
	var (
		store  domainRepository.CheckpointStore
		cfg    *config.Config
		report *StatusReport
	)
	opts := append(o.baseOptions(), fx.Populate(&store, &cfg))
	err := withApp(ctx, o, opts, func(ctx context.Context) error {
		meta, err := store.Load(ctx)
		switch {
		case errors.Is(err, domainRepository.ErrCheckpointNotFound):
			report = NewStatusReport(cfg.Notepipe.Pipeline.RunName, nil)
			return nil
		case err != nil:
			return err
		}
		report = NewStatusReport(cfg.Notepipe.Pipeline.RunName, meta)
		return nil
	})
	return report, err
}

// MigrateDirection selects Up or Down.
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// Migrate applies or rolls back the checkpoint schema on the configured checkpoint database
// and returns the resulting schema version. ok is false when no migration is applied.
func Migrate(ctx context.Context, o Options, direction MigrateDirection) (version uint, ok bool, err error) {
	var (
		resolver database.DBConnectionResolver
		cfg      *config.Config
	)
	// Only the resolver is populated, so the checkpoint store is never constructed here.
	opts := append(o.baseOptions(), fx.Populate(&resolver, &cfg))
	err = withApp(ctx, o, opts, func(ctx context.Context) error {
		ref := cfg.Notepipe.Checkpoint.DatabaseRef
		conn, err := resolver.ResolveDBConnection(ctx, ref)
		if err != nil {
			return exception.NewConfigurationError("migrate", fmt.Sprintf("cannot open database '%s'", ref), err)
		}
		migrator := sqlrepo.NewMigrator(conn)
		switch direction {
		case MigrateUp:
			err = migrator.Up(ctx)
		case MigrateDown:
			err = migrator.Down(ctx)
		default:
			return exception.NewConfigurationError("migrate", fmt.Sprintf("unknown direction '%s'", direction), nil)
		}
		if err != nil {
			return err
		}
		version, ok, err = migrator.Version(ctx)
		return err
	})
	return version, ok, err
}
