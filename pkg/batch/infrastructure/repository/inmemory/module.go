package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
)

// Module provides InMemoryCheckpointStore as the repository.CheckpointStore.
// It replaces the configured store when an application is assembled for tests or dry runs.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryCheckpointStore,
			fx.As(new(repository.CheckpointStore)),
		),
	),
)
