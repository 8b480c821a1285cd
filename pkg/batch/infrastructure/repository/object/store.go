// Package object implements the CheckpointStore as a JSON document in a storage connection.
package object

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const (
	moduleName = "ObjectCheckpointStore"

	// DocumentName is the object name of the checkpoint inside the run directory.
	DocumentName = "checkpoint.json"
	contentType  = "application/json"
)

// ObjectCheckpointStore stores the checkpoint at <prefix>/<run>/checkpoint.json.
// Atomicity of Save is inherited from StorageConnection.Upload.
type ObjectCheckpointStore struct {
	conn       storageAdapter.StorageConnection
	objectName string
}

// DocumentPath returns the object name of the checkpoint of runName under prefix.
func DocumentPath(prefix, runName string) string {
	return path.Join(prefix, runName, DocumentName)
}

// NewObjectCheckpointStore creates a store writing the checkpoint of runName through conn.
func NewObjectCheckpointStore(conn storageAdapter.StorageConnection, prefix, runName string) *ObjectCheckpointStore {
	return &ObjectCheckpointStore{
		conn:       conn,
		objectName: DocumentPath(prefix, runName),
	}
}

// ObjectName returns the object the checkpoint is stored in.
func (s *ObjectCheckpointStore) ObjectName() string {
	return s.objectName
}

// Load implements repository.CheckpointStore.
func (s *ObjectCheckpointStore) Load(ctx context.Context) (*model.CheckpointMetadata, error) {
	r, err := s.conn.Download(ctx, "", s.objectName)
	if err != nil {
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			return nil, repository.ErrCheckpointNotFound
		}
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read '%s'", s.objectName), err, true)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read '%s'", s.objectName), err, true)
	}
	var meta model.CheckpointMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("'%s' is not a valid checkpoint document", s.objectName), err, false)
	}
	return &meta, nil
}

// Save implements repository.CheckpointStore.
func (s *ObjectCheckpointStore) Save(ctx context.Context, metadata *model.CheckpointMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to encode checkpoint", err, false)
	}
	if err := s.conn.Upload(ctx, "", s.objectName, bytes.NewReader(data), contentType); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to write '%s'", s.objectName), err, true)
	}
	logger.Debugf("ObjectCheckpointStore: saved '%s' (%d bytes).", s.objectName, len(data))
	return nil
}

// Close implements repository.CheckpointStore. The connection belongs to its provider.
func (s *ObjectCheckpointStore) Close() error {
	return nil
}

var _ repository.CheckpointStore = (*ObjectCheckpointStore)(nil)
