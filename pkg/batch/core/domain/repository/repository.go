// Package repository defines the persistence port of the pipeline engine.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// ErrCheckpointNotFound is returned by Load when no checkpoint has been stored yet.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore is the durable representation of one pipeline run's state.
//
// Implementations must make Save atomic with respect to process crashes: a subsequent Load
// observes either the previous document or the new one, never a partial write.
type CheckpointStore interface {
	// Load returns the stored document, or ErrCheckpointNotFound.
	Load(ctx context.Context) (*model.CheckpointMetadata, error)
	// Save replaces the stored document.
	Save(ctx context.Context, metadata *model.CheckpointMetadata) error
	// Close releases resources (connections, clients) held by the store.
	Close() error
}
