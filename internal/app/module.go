// Package app assembles the notepipe application from the framework modules and the note
// stages, and exposes the operations behind the command line.
package app

import (
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/internal/notes"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/core/job/runner"
	"github.com/tigerroll/notepipe/pkg/batch/core/progress"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/partition"
	batchlistener "github.com/tigerroll/notepipe/pkg/batch/listener"
	infraMetrics "github.com/tigerroll/notepipe/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// DBProviderMap maps the names accepted by DBProviderOptions to their provider constructors.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	"postgres": postgres.NewProvider,
	"mysql":    mysql.NewProvider,
	"sqlite":   sqlite.NewProvider,
}

// DefaultDBProviders is used when no provider list is given.
const DefaultDBProviders = "sqlite,postgres,mysql"

// DBProviderOptions registers the named DB providers in the db_providers group.
// Unknown names are logged and skipped.
func DBProviderOptions(names string) []fx.Option {
	if strings.TrimSpace(names) == "" {
		names = DefaultDBProviders
	}
	options := make([]fx.Option, 0)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		provider, ok := DBProviderMap[name]
		if !ok {
			logger.Warnf("DB provider '%s' is not supported. Skipping.", name)
			continue
		}
		options = append(options, fx.Provide(fx.Annotate(provider, fx.ResultTags(`group:"`+database.DBProviderGroup+`"`))))
		logger.Debugf("DB provider '%s' registered.", name)
	}
	return options
}

// StorageModule provides the storage resolver with the local and GCS providers.
var StorageModule = fx.Options(
	storageAdapter.Module,
	local.Module,
	gcs.Module,
)

// CheckpointModule provides the configured checkpoint store and the database resolver it may
// need. The DB providers are registered separately through DBProviderOptions.
var CheckpointModule = fx.Options(
	gormadapter.Module,
	repository.Module,
)

// PipelineModule provides everything a pipeline run needs on top of CheckpointModule.
var PipelineModule = fx.Options(
	infraMetrics.Module,
	batchlistener.Module,
	progress.Module,
	partition.Module,
	runner.Module,
	notes.Module,
	fx.Provide(NewPipeline),
)
