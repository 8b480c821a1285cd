// Package test provides test doubles shared by the notepipe test suites.
package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
)

// MockCheckpointStore is a mock implementation of repository.CheckpointStore.
// Saved documents are cloned before being recorded so assertions see the state at save time.
type MockCheckpointStore struct {
	mock.Mock
}

// Load mocks the Load method of repository.CheckpointStore.
func (m *MockCheckpointStore) Load(ctx context.Context) (*model.CheckpointMetadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckpointMetadata).Clone(), args.Error(1)
}

// Save mocks the Save method of repository.CheckpointStore.
func (m *MockCheckpointStore) Save(ctx context.Context, metadata *model.CheckpointMetadata) error {
	args := m.Called(ctx, metadata.Clone())
	return args.Error(0)
}

// Close mocks the Close method of repository.CheckpointStore.
func (m *MockCheckpointStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repository.CheckpointStore = (*MockCheckpointStore)(nil)
