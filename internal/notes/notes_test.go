package notes_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/internal/notes"
	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/notepipe/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/storage/local"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newConn(t *testing.T, fsys afero.Fs) storageAdapter.StorageConnection {
	t.Helper()
	conn, err := local.NewLocalAdapter(fsys, storageConfig.StorageConfig{Type: "local", BaseDir: "/data"}, "local")
	require.NoError(t, err)
	return conn
}

func writeNote(t *testing.T, fsys afero.Fs, name string, note notes.Note) {
	t.Helper()
	data, err := json.Marshal(note)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, "/data/notes/"+name, data, 0644))
}

// fakeCompleter answers from a fixed table; an id whose title is missing fails.
type fakeCompleter struct {
	mu    sync.Mutex
	calls []notes.CompletionRequest
	err   error
}

func (f *fakeCompleter) Do(ctx context.Context, req notes.CompletionRequest) (notes.CompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return notes.CompletionResponse{}, f.err
	}
	return notes.CompletionResponse{Summary: "about " + req.Title, Tags: []string{" Go ", "go", "", "Batch"}}, nil
}

type fakeEmbedder struct {
	inputs []string
	empty  bool
}

func (f *fakeEmbedder) Do(ctx context.Context, req notes.EmbeddingRequest) (notes.EmbeddingResponse, error) {
	f.inputs = append(f.inputs, req.Input)
	if f.empty {
		return notes.EmbeddingResponse{}, nil
	}
	return notes.EmbeddingResponse{Embedding: []float64{0.5, float64(len(req.Input))}}, nil
}

func TestLoadSource_OrdersNotesAndSkipsOtherObjects(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeNote(t, fsys, "b.json", notes.Note{Title: "B", Body: "second"})
	writeNote(t, fsys, "a.json", notes.Note{Title: "A", Body: "first"})
	writeNote(t, fsys, "nested/c.json", notes.Note{Title: "C", Body: "third"})
	require.NoError(t, afero.WriteFile(fsys, "/data/notes/README.txt", []byte("not a note"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/data/notes-old/z.json", []byte("{}"), 0644))

	src, err := notes.LoadSource(context.Background(), newConn(t, fsys), "notes/")
	require.NoError(t, err)
	require.Equal(t, 3, src.Count())

	for i, want := range []string{"notes/a.json", "notes/b.json", "notes/nested/c.json"} {
		name, err := src.ObjectName(model.ItemID(i))
		require.NoError(t, err)
		assert.Equal(t, want, name)
	}

	note, name, err := src.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "notes/b.json", name)
	assert.Equal(t, "second", note.Body)

	_, err = src.ObjectName(3)
	assert.True(t, exception.IsItemError(err))
}

func TestLoadSource_EmptyPrefix(t *testing.T) {
	src, err := notes.LoadSource(context.Background(), newConn(t, afero.NewMemMapFs()), "notes")
	require.NoError(t, err)
	assert.Zero(t, src.Count())
}

func TestSource_ReadRejectsBadNotes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/notes/0.json", []byte("{not json"), 0644))
	writeNote(t, fsys, "1.json", notes.Note{})
	writeNote(t, fsys, "2.json", notes.Note{Title: "gone"})

	conn := newConn(t, fsys)
	src, err := notes.LoadSource(context.Background(), conn, "notes")
	require.NoError(t, err)
	require.NoError(t, fsys.Remove("/data/notes/2.json"))

	for _, id := range []model.ItemID{0, 1, 2} {
		_, _, err := src.Read(context.Background(), id)
		assert.True(t, exception.IsItemError(err), "item %s: %v", id, err)
	}
}

type pipelineFixture struct {
	fsys       afero.Fs
	artifacts  *notes.ArtifactStore
	completion *fakeCompleter
	embedding  *fakeEmbedder
	workers    *notes.Workers
}

func newFixture(t *testing.T, count int) *pipelineFixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for i := 0; i < count; i++ {
		writeNote(t, fsys, fmt.Sprintf("%02d.json", i), notes.Note{Title: fmt.Sprintf("note %d", i), Body: "body", CreatedAt: t0})
	}
	conn := newConn(t, fsys)
	src, err := notes.LoadSource(context.Background(), conn, "notes")
	require.NoError(t, err)

	f := &pipelineFixture{
		fsys:       fsys,
		artifacts:  notes.NewArtifactStore(conn, "runs", "nightly"),
		completion: &fakeCompleter{},
		embedding:  &fakeEmbedder{},
	}
	f.workers = notes.NewWorkers(src, f.artifacts, f.completion, f.embedding,
		notes.WithModels("summarizer", "embedder"),
		notes.WithNow(func() time.Time { return t0 }))
	return f
}

func TestWorkers_AllStagesProduceArtifacts(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	byStage := f.workers.ByStage()
	require.Len(t, byStage, 4)

	for _, stage := range model.AllStages() {
		for id := model.ItemID(0); id < 2; id++ {
			require.NoError(t, byStage[stage](ctx, id), "stage %s item %s", stage, id)
		}
	}

	var merged notes.MergedNote
	require.NoError(t, f.artifacts.Get(ctx, notes.KindMerged, 1, &merged))
	assert.Equal(t, int64(1), merged.ID)
	assert.Equal(t, "notes/01.json", merged.Source)
	assert.Equal(t, "note 1", merged.Title)
	assert.Equal(t, "about note 1", merged.Summary)
	assert.Equal(t, []string{"go", "batch"}, merged.Tags)
	assert.Equal(t, []float64{0.5, float64(len("note 1\nabout note 1\ngo, batch"))}, merged.Embedding)
	assert.Equal(t, t0.UnixMilli(), merged.MergedAt)

	exists, err := afero.Exists(f.fsys, "/data/runs/nightly/enriched/0.json")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "summarizer", f.completion.calls[0].Model)
}

func TestWorkers_RerunOverwritesArtifact(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.workers.RawExport(ctx, 0))
	require.NoError(t, f.workers.RawExport(ctx, 0))

	files, err := afero.ReadDir(f.fsys, "/data/runs/nightly/raw")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWorkers_MissingUpstreamArtifactIsItemError(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.workers.Enrich(ctx, 0)
	assert.True(t, exception.IsItemError(err))
	assert.Empty(t, f.completion.calls, "no model call without a raw note")

	require.NoError(t, f.workers.RawExport(ctx, 0))
	assert.True(t, exception.IsItemError(f.workers.Embed(ctx, 0)))
	assert.True(t, exception.IsItemError(f.workers.Merge(ctx, 0)))
}

func TestWorkers_ClientErrorsFailTheItem(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.workers.RawExport(ctx, 0))

	exhausted := exception.NewExhaustedRetries("completion", 6, exception.ErrRateLimited)
	f.completion.err = exhausted
	err := f.workers.Enrich(ctx, 0)
	assert.True(t, errors.Is(err, exception.ErrRateLimited))
	assert.True(t, exception.IsExhaustedRetries(err))

	f.completion.err = nil
	require.NoError(t, f.workers.Enrich(ctx, 0))
	f.embedding.empty = true
	assert.True(t, exception.IsItemError(f.workers.Embed(ctx, 0)))
}

func TestExportParquet_WritesDataset(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	for _, stage := range model.AllStages() {
		for id := model.ItemID(0); id < 3; id++ {
			require.NoError(t, f.workers.ByStage()[stage](ctx, id))
		}
	}

	n, err := notes.ExportParquet(ctx, f.artifacts, model.NewItemSet(2, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "runs/nightly/merged/notes.parquet", f.artifacts.DatasetName())

	data, err := afero.ReadFile(f.fsys, "/data/runs/nightly/merged/notes.parquet")
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))

	rows := readMerged(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[0].ID)
	assert.Equal(t, int64(2), rows[1].ID)
	assert.Equal(t, "about note 2", rows[1].Summary)
}

func TestExportParquet_MissingMergedNoteFailsExport(t *testing.T) {
	f := newFixture(t, 1)
	_, err := notes.ExportParquet(context.Background(), f.artifacts, model.NewItemSet(0))
	assert.True(t, exception.IsStageFailure(err))

	n, err := notes.ExportParquet(context.Background(), f.artifacts, model.NewItemSet())
	require.NoError(t, err)
	assert.Zero(t, n)
}
