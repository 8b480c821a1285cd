package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	"github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryCheckpointStore(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewInMemoryCheckpointStore()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)

	doc := model.NewCheckpointMetadata(3, time.Now())
	require.NoError(t, store.Save(ctx, doc))

	doc.Stage(model.StageRawExport).Processed.Add(1)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded.Stage(model.StageRawExport).Processed.Has(1), "saved copy is isolated from the caller")

	loaded.TotalItems = 99
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, again.TotalItems, "loaded copy is isolated from the store")
	assert.Equal(t, 1, store.SaveCount())
	assert.NoError(t, store.Close())
}
