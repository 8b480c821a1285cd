package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

const moduleArtifacts = "artifacts"

// Artifact kinds. Each stage writes one kind per item.
const (
	KindRaw       = "raw"
	KindEnriched  = "enriched"
	KindEmbedding = "embeddings"
	KindMerged    = "merged"
)

// ParquetObject is the name of the merged dataset under the run's merged directory.
const ParquetObject = "notes.parquet"

// ArtifactStore reads and writes the per-item stage outputs of one run under
// <prefix>/<run>/<kind>/<id>.json.
type ArtifactStore struct {
	conn    storageAdapter.StorageConnection
	baseDir string
}

// NewArtifactStore creates an ArtifactStore for runName under prefix on conn.
func NewArtifactStore(conn storageAdapter.StorageConnection, prefix, runName string) *ArtifactStore {
	return &ArtifactStore{conn: conn, baseDir: path.Join(prefix, runName)}
}

// ObjectName returns the object name of the artifact of kind for id.
func (a *ArtifactStore) ObjectName(kind string, id model.ItemID) string {
	return path.Join(a.baseDir, kind, id.String()+".json")
}

// DatasetName returns the object name of the merged parquet dataset.
func (a *ArtifactStore) DatasetName() string {
	return path.Join(a.baseDir, KindMerged, ParquetObject)
}

// Put writes v as the artifact of kind for id, replacing any earlier version. The write is
// atomic, so a re-run of an interrupted item simply overwrites it.
func (a *ArtifactStore) Put(ctx context.Context, kind string, id model.ItemID, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exception.NewItemError(moduleArtifacts, fmt.Sprintf("failed to encode %s artifact of item %s", kind, id), err)
	}
	name := a.ObjectName(kind, id)
	if err := a.conn.Upload(ctx, "", name, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("failed to write artifact '%s': %w", name, err)
	}
	return nil
}

// Get decodes the artifact of kind for id into v. A missing artifact means the producing
// stage did not succeed for this item and is reported as an ItemError.
func (a *ArtifactStore) Get(ctx context.Context, kind string, id model.ItemID, v any) error {
	name := a.ObjectName(kind, id)
	rc, err := a.conn.Download(ctx, "", name)
	if err != nil {
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			return exception.NewItemError(moduleArtifacts, fmt.Sprintf("no %s artifact for item %s", kind, id), err)
		}
		return fmt.Errorf("failed to read artifact '%s': %w", name, err)
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(v); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return exception.NewItemError(moduleArtifacts, fmt.Sprintf("%s artifact of item %s is unreadable", kind, id), err)
	}
	return nil
}

// PutObject uploads data under the run's directory as name.
func (a *ArtifactStore) PutObject(ctx context.Context, name string, data []byte, contentType string) error {
	return a.conn.Upload(ctx, "", name, bytes.NewReader(data), contentType)
}
