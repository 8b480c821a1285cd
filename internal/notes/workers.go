package notes

import (
	"context"
	"fmt"
	"strings"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/partition"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleWorkers = "note_workers"

// Completer produces the enrichment of one note.
type Completer interface {
	Do(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Embedder produces the embedding of one text.
type Embedder interface {
	Do(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error)
}

// Workers holds the per-item work of every stage of one run.
type Workers struct {
	source          *Source
	artifacts       *ArtifactStore
	completion      Completer
	embedding       Embedder
	completionModel string
	embeddingModel  string
	now             func() time.Time
}

// WorkersOption configures Workers.
type WorkersOption func(*Workers)

// WithModels records the model names in the enrichment and embedding artifacts and sends
// them with every request.
func WithModels(completionModel, embeddingModel string) WorkersOption {
	return func(w *Workers) {
		w.completionModel = completionModel
		w.embeddingModel = embeddingModel
	}
}

// WithNow replaces the clock stamping merged records.
func WithNow(now func() time.Time) WorkersOption {
	return func(w *Workers) { w.now = now }
}

// NewWorkers creates the stage workers.
func NewWorkers(source *Source, artifacts *ArtifactStore, completion Completer, embedding Embedder, opts ...WorkersOption) *Workers {
	w := &Workers{
		source:     source,
		artifacts:  artifacts,
		completion: completion,
		embedding:  embedding,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ByStage returns the worker of every stage, keyed for PipelineOrchestrator.RunPipeline.
func (w *Workers) ByStage() map[model.Stage]partition.Worker {
	return map[model.Stage]partition.Worker{
		model.StageRawExport:  w.RawExport,
		model.StageEnrichment: w.Enrich,
		model.StageClustering: w.Embed,
		model.StageFinalMerge: w.Merge,
	}
}

// RawExport copies source note id into the run's raw artifacts.
func (w *Workers) RawExport(ctx context.Context, id model.ItemID) error {
	note, name, err := w.source.Read(ctx, id)
	if err != nil {
		return err
	}
	raw := RawNote{
		ID:        int(id),
		Source:    name,
		Title:     note.Title,
		Body:      note.Body,
		CreatedAt: note.CreatedAt,
	}
	return w.artifacts.Put(ctx, KindRaw, id, raw)
}

// Enrich asks the completion service for the summary and tags of raw note id.
func (w *Workers) Enrich(ctx context.Context, id model.ItemID) error {
	var raw RawNote
	if err := w.artifacts.Get(ctx, KindRaw, id, &raw); err != nil {
		return err
	}

	resp, err := w.completion.Do(ctx, CompletionRequest{Model: w.completionModel, Title: raw.Title, Text: raw.Body})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return exception.NewItemError(moduleWorkers, fmt.Sprintf("completion for item %s returned an empty summary", id), nil)
	}

	return w.artifacts.Put(ctx, KindEnriched, id, Enrichment{
		ID:      int(id),
		Model:   w.completionModel,
		Summary: resp.Summary,
		Tags:    normalizeTags(resp.Tags),
	})
}

// Embed asks the embedding service for the vector of note id's title and summary.
func (w *Workers) Embed(ctx context.Context, id model.ItemID) error {
	var raw RawNote
	if err := w.artifacts.Get(ctx, KindRaw, id, &raw); err != nil {
		return err
	}
	var enriched Enrichment
	if err := w.artifacts.Get(ctx, KindEnriched, id, &enriched); err != nil {
		return err
	}

	resp, err := w.embedding.Do(ctx, EmbeddingRequest{Model: w.embeddingModel, Input: embeddingInput(raw, enriched)})
	if err != nil {
		return err
	}
	if len(resp.Embedding) == 0 {
		return exception.NewItemError(moduleWorkers, fmt.Sprintf("embedding for item %s is empty", id), nil)
	}

	return w.artifacts.Put(ctx, KindEmbedding, id, Embedding{
		ID:     int(id),
		Model:  w.embeddingModel,
		Vector: resp.Embedding,
	})
}

// Merge combines the raw, enriched and embedding artifacts of note id.
func (w *Workers) Merge(ctx context.Context, id model.ItemID) error {
	var (
		raw       RawNote
		enriched  Enrichment
		embedding Embedding
	)
	if err := w.artifacts.Get(ctx, KindRaw, id, &raw); err != nil {
		return err
	}
	if err := w.artifacts.Get(ctx, KindEnriched, id, &enriched); err != nil {
		return err
	}
	if err := w.artifacts.Get(ctx, KindEmbedding, id, &embedding); err != nil {
		return err
	}

	merged := MergedNote{
		ID:        int64(id),
		Source:    raw.Source,
		Title:     raw.Title,
		Body:      raw.Body,
		Summary:   enriched.Summary,
		Tags:      enriched.Tags,
		Embedding: embedding.Vector,
		MergedAt:  w.now().UTC().UnixMilli(),
	}
	if err := w.artifacts.Put(ctx, KindMerged, id, merged); err != nil {
		return err
	}
	logger.Debugf("NoteWorkers: merged item %s ('%s').", id, raw.Source)
	return nil
}

func embeddingInput(raw RawNote, enriched Enrichment) string {
	parts := []string{raw.Title, enriched.Summary}
	if len(enriched.Tags) > 0 {
		parts = append(parts, strings.Join(enriched.Tags, ", "))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// normalizeTags lower-cases and trims tags, dropping empty ones and duplicates while keeping
// the service's order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
