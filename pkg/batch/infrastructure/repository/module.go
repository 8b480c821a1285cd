// Package repository selects and provides the configured CheckpointStore.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	domainRepository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	"github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/object"
	sqlrepo "github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleName = "checkpoint_store"

// CheckpointStoreParams defines the dependencies of NewCheckpointStore. The resolvers are
// optional so an application without a database adapter can still use the object store.
type CheckpointStoreParams struct {
	fx.In
	Config          *config.Config
	StorageResolver storageAdapter.StorageConnectionResolver `optional:"true"`
	DBResolver      database.DBConnectionResolver            `optional:"true"`
}

// NewCheckpointStore returns the store selected by notepipe.checkpoint.store for the run
// notepipe.pipeline.run_name. The SQL store applies its migrations first when auto_migrate
// is set.
func NewCheckpointStore(p CheckpointStoreParams) (domainRepository.CheckpointStore, error) {
	ctx := context.Background()
	cp := p.Config.Notepipe.Checkpoint
	runName := p.Config.Notepipe.Pipeline.RunName

	switch cp.Store {
	case config.StoreMemory:
		logger.Warnf("CheckpointStore: using the in-memory store; progress of run '%s' will not survive the process.", runName)
		return inmemory.NewInMemoryCheckpointStore(), nil

	case config.StoreObject:
		if p.StorageResolver == nil {
			return nil, exception.NewConfigurationError(moduleName, "the object checkpoint store requires a storage adapter", nil)
		}
		conn, err := p.StorageResolver.ResolveStorageConnection(ctx, cp.StorageRef)
		if err != nil {
			return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("cannot open storage '%s' for checkpoints", cp.StorageRef), err)
		}
		store := object.NewObjectCheckpointStore(conn, cp.Prefix, runName)
		logger.Infof("CheckpointStore: run '%s' is checkpointed to '%s' on storage '%s'.", runName, store.ObjectName(), cp.StorageRef)
		return store, nil

	case config.StoreSQL:
		if p.DBResolver == nil {
			return nil, exception.NewConfigurationError(moduleName, "the sql checkpoint store requires a database adapter", nil)
		}
		conn, err := p.DBResolver.ResolveDBConnection(ctx, cp.DatabaseRef)
		if err != nil {
			return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("cannot open database '%s' for checkpoints", cp.DatabaseRef), err)
		}
		if cp.AutoMigrate {
			if err := sqlrepo.NewMigrator(conn).Up(ctx); err != nil {
				return nil, exception.NewConfigurationError(moduleName, "checkpoint schema migration failed", err)
			}
		}
		logger.Infof("CheckpointStore: run '%s' is checkpointed to database '%s' (%s).", runName, cp.DatabaseRef, conn.Type())
		return sqlrepo.NewSQLCheckpointStore(p.DBResolver, cp.DatabaseRef, runName), nil

	default:
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown checkpoint store '%s'", cp.Store), nil)
	}
}

// Module provides the configured repository.CheckpointStore.
var Module = fx.Options(
	fx.Provide(NewCheckpointStore),
)
