// Package storage defines the common interfaces of the storage adapters.
// Stage artifacts and the object checkpoint store go through these interfaces, so the
// pipeline runs unchanged against the local file system or a GCS bucket.
package storage

import (
	"context"
	"errors"
	"io"

	coreAdapter "github.com/tigerroll/notepipe/pkg/batch/core/adapter"
)

// ErrObjectNotFound is wrapped by Download when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to the specified bucket and object name. 'contentType' is the MIME
	// type of the data. The write is atomic: readers see either the previous object or the
	// complete new one.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a ReadCloser over the object which must be closed by the caller.
	// A missing object yields an error wrapping ErrObjectNotFound.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix, in lexical order of the object names.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection represents a named storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Close(), Type(), Name()
	StorageExecutor                // Upload(), Download(), ListObjects(), DeleteObject()
}

// StorageProvider manages the acquisition and lifecycle of the connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves the StorageConnection with the specified name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
	// ForceReconnect closes and re-establishes the connection with the specified name.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves storage connections by their configured name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver // ResolveConnection()

	// ResolveStorageConnection resolves a StorageConnection instance by name.
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
