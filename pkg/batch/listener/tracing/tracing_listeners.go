// Package tracing provides a StageListener that opens a span per stage run and per chunk.
package tracing

import (
	"context"
	"sync"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/core/metrics"
)

type span struct {
	ctx context.Context
	end func()
}

// TracingStageListener manages tracing spans for stage runs. Chunk spans are children of
// their stage span; item failures are recorded on the current chunk span.
type TracingStageListener struct {
	tracer metrics.Tracer

	mu     sync.Mutex
	stages map[model.Stage]span
	chunks map[model.Stage]span
}

// NewTracingStageListener creates a TracingStageListener using tracer.
func NewTracingStageListener(tracer metrics.Tracer) *TracingStageListener {
	return &TracingStageListener{
		tracer: tracer,
		stages: make(map[model.Stage]span),
		chunks: make(map[model.Stage]span),
	}
}

func (l *TracingStageListener) BeforeStage(ctx context.Context, stage model.Stage) {
	spanCtx, end := l.tracer.StartStageSpan(ctx, stage)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages[stage] = span{ctx: spanCtx, end: end}
}

func (l *TracingStageListener) BeforeChunk(ctx context.Context, stage model.Stage, index int, ids []model.ItemID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	parent := ctx
	if s, ok := l.stages[stage]; ok {
		parent = s.ctx
	}
	spanCtx, end := l.tracer.StartChunkSpan(parent, stage, index, len(ids))
	l.chunks[stage] = span{ctx: spanCtx, end: end}
}

func (l *TracingStageListener) AfterChunk(ctx context.Context, stage model.Stage, summary port.ChunkSummary) {
	l.mu.Lock()
	s, ok := l.chunks[stage]
	delete(l.chunks, stage)
	l.mu.Unlock()
	if !ok {
		return
	}
	l.tracer.RecordEvent(s.ctx, "chunk.done", map[string]interface{}{
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"interrupted": summary.Interrupted,
	})
	s.end()
}

func (l *TracingStageListener) OnItemFailure(ctx context.Context, stage model.Stage, id model.ItemID, err error) {
	l.mu.Lock()
	s, ok := l.chunks[stage]
	l.mu.Unlock()
	if !ok {
		return
	}
	l.tracer.RecordEvent(s.ctx, "item.failed", map[string]interface{}{
		"item.id": id.String(),
		"error":   err.Error(),
	})
}

func (l *TracingStageListener) AfterStage(ctx context.Context, stage model.Stage, summary port.StageSummary) {
	l.mu.Lock()
	chunk, chunkOpen := l.chunks[stage]
	s, ok := l.stages[stage]
	delete(l.chunks, stage)
	delete(l.stages, stage)
	l.mu.Unlock()

	if chunkOpen {
		chunk.end()
	}
	if !ok {
		return
	}
	if summary.Err != nil {
		l.tracer.RecordError(s.ctx, stage.String(), summary.Err)
	}
	s.end()
}

var _ port.StageListener = (*TracingStageListener)(nil)
