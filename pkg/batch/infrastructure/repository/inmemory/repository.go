// Package inmemory provides an in-memory CheckpointStore.
// Nothing survives the process, so it is meant for tests and dry runs.
package inmemory

import (
	"context"
	"sync"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
)

// InMemoryCheckpointStore keeps the last saved document in memory.
type InMemoryCheckpointStore struct {
	mu    sync.RWMutex
	doc   *model.CheckpointMetadata
	saves int
}

// NewInMemoryCheckpointStore creates an empty store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{}
}

// Load returns a deep copy of the stored document.
func (s *InMemoryCheckpointStore) Load(ctx context.Context) (*model.CheckpointMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, repository.ErrCheckpointNotFound
	}
	return s.doc.Clone(), nil
}

// Save stores a deep copy so later mutations by the caller are not visible until the next Save.
func (s *InMemoryCheckpointStore) Save(ctx context.Context, metadata *model.CheckpointMetadata) error {
	clone := metadata.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = clone
	s.saves++
	return nil
}

// SaveCount returns how many times Save has been called.
func (s *InMemoryCheckpointStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close releases nothing.
func (s *InMemoryCheckpointStore) Close() error {
	return nil
}

var _ repository.CheckpointStore = (*InMemoryCheckpointStore)(nil)
