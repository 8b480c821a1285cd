package test

import (
	"context"
	"sync"
	"time"

	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// RecordingMetricRecorder keeps every call in memory for assertions.
type RecordingMetricRecorder struct {
	mu          sync.Mutex
	StageStarts []model.Stage
	StageEnds   map[model.Stage]model.StageStatus
	Items       map[model.Stage][2]int // [succeeded, failed]
	Chunks      map[model.Stage][]int
	Retries     map[string][]string
	Waits       map[string][]time.Duration
}

// NewRecordingMetricRecorder creates an empty recorder.
func NewRecordingMetricRecorder() *RecordingMetricRecorder {
	return &RecordingMetricRecorder{
		StageEnds: map[model.Stage]model.StageStatus{},
		Items:     map[model.Stage][2]int{},
		Chunks:    map[model.Stage][]int{},
		Retries:   map[string][]string{},
		Waits:     map[string][]time.Duration{},
	}
}

func (r *RecordingMetricRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StageStarts = append(r.StageStarts, stage)
}

func (r *RecordingMetricRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StageEnds[stage] = status
}

func (r *RecordingMetricRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.Items[stage]
	if success {
		c[0]++
	} else {
		c[1]++
	}
	r.Items[stage] = c
}

func (r *RecordingMetricRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Chunks[stage] = append(r.Chunks[stage], size)
}

func (r *RecordingMetricRecorder) RecordRetry(ctx context.Context, client string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Retries[client] = append(r.Retries[client], reason)
}

func (r *RecordingMetricRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Waits[client] = append(r.Waits[client], waited)
}

// RetryReasons returns a copy of the reasons recorded for client.
func (r *RecordingMetricRecorder) RetryReasons(client string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Retries[client]...)
}

// RateLimitWaits returns a copy of the limiter waits recorded for client.
func (r *RecordingMetricRecorder) RateLimitWaits(client string) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.Waits[client]...)
}

// ItemCounts returns the succeeded and failed counts of stage.
func (r *RecordingMetricRecorder) ItemCounts(stage model.Stage) (succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.Items[stage]
	return c[0], c[1]
}

var _ metrics.MetricRecorder = (*RecordingMetricRecorder)(nil)
