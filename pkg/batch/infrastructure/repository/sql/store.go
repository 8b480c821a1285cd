// Package sql implements the CheckpointStore on a relational database through the GORM adapter.
// Each run is one row of pipeline_checkpoints, keyed by its run name.
package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/notepipe/pkg/batch/core/adapter"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleName = "SQLCheckpointStore"

// SQLCheckpointStore implements repository.CheckpointStore.
// Save is a single INSERT ... ON CONFLICT statement, so a crash leaves either the previous
// row or the new one.
type SQLCheckpointStore struct {
	dbResolver coreAdapter.ResourceConnectionResolver
	// dbName is the adapter.database connection used by this store (e.g., "checkpoint").
	dbName  string
	runName string
}

// NewSQLCheckpointStore creates a store for runName.
//
// Parameters:
//
//	dbResolver: The resolver the database connection is obtained from on every call.
//	dbName: The name of the database connection.
//	runName: The run whose checkpoint row is read and written.
//
// Returns:
//
//	A new SQLCheckpointStore.
func NewSQLCheckpointStore(dbResolver coreAdapter.ResourceConnectionResolver, dbName, runName string) *SQLCheckpointStore {
	return &SQLCheckpointStore{
		dbResolver: dbResolver,
		dbName:     dbName,
		runName:    runName,
	}
}

// getDBConnection resolves the connection on each call so a reconnect by the resolver is
// picked up.
func (s *SQLCheckpointStore) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	resource, err := s.dbResolver.ResolveConnection(ctx, s.dbName)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to resolve DB connection '%s'", s.dbName), err, false)
	}
	conn, ok := resource.(database.DBConnection)
	if !ok {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("resolved connection '%s' is not a database connection", s.dbName), nil, false)
	}
	return conn, nil
}

// Load implements repository.CheckpointStore.
func (s *SQLCheckpointStore) Load(ctx context.Context) (*model.CheckpointMetadata, error) {
	conn, err := s.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var rows []CheckpointEntity
	if err := conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"run_name": s.runName}); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to load checkpoint of run '%s'", s.runName), err, true)
	}
	if len(rows) == 0 {
		return nil, repository.ErrCheckpointNotFound
	}
	meta, err := toDomainCheckpoint(&rows[0])
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "stored checkpoint is unreadable", err, false)
	}
	return meta, nil
}

// Save implements repository.CheckpointStore.
func (s *SQLCheckpointStore) Save(ctx context.Context, metadata *model.CheckpointMetadata) error {
	entity, err := fromDomainCheckpoint(s.runName, metadata)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to encode checkpoint", err, false)
	}
	conn, err := s.getDBConnection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"run_name"}, upsertColumns); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save checkpoint of run '%s'", s.runName), err, true)
	}
	logger.Debugf("SQLCheckpointStore: saved checkpoint of run '%s' to '%s'.", s.runName, s.dbName)
	return nil
}

// Close implements repository.CheckpointStore. The connection belongs to its provider and is
// closed with it.
func (s *SQLCheckpointStore) Close() error {
	return nil
}

var _ repository.CheckpointStore = (*SQLCheckpointStore)(nil)
