package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type     string
	Ctx      context.Context
	Stage    model.Stage
	Status   model.StageStatus
	Success  bool
	Count    int           // Chunk size
	Client   string        // For retry and rate limit events
	Reason   string        // For retry events
	Duration time.Duration // Stage duration or rate limit wait
}

// Metric event type constants
const (
	MetricEventTypeStageStart    = "stage_start"
	MetricEventTypeStageEnd      = "stage_end"
	MetricEventTypeItem          = "item"
	MetricEventTypeChunk         = "chunk"
	MetricEventTypeRetry         = "retry"
	MetricEventTypeRateLimitWait = "rate_limit_wait"
)

// AsyncMetricRecorder records metrics by pushing events to a channel and processing them in
// a separate goroutine, so workers never block on a metrics backend.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// bufferSize: The buffer size for the event queue. If 0 or less, a default value is used.
// syncRec: The synchronous recorder that performs the actual metric recording.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain what is already queued before exiting.
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := event.Ctx
	switch event.Type {
	case MetricEventTypeStageStart:
		r.syncRecorder.RecordStageStart(ctx, event.Stage)
	case MetricEventTypeStageEnd:
		r.syncRecorder.RecordStageEnd(ctx, event.Stage, event.Status, event.Duration)
	case MetricEventTypeItem:
		r.syncRecorder.RecordItem(ctx, event.Stage, event.Success)
	case MetricEventTypeChunk:
		r.syncRecorder.RecordChunk(ctx, event.Stage, event.Count)
	case MetricEventTypeRetry:
		r.syncRecorder.RecordRetry(ctx, event.Client, event.Reason)
	case MetricEventTypeRateLimitWait:
		r.syncRecorder.RecordRateLimitWait(ctx, event.Client, event.Duration)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the recorder after processing every event already queued. It is safe to call
// more than once; events sent after Close are discarded.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		logger.Debugf("AsyncMetricRecorder: Sending shutdown signal...")
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// sendEvent queues an event, discarding it with a warning when the queue is full or the
// recorder is closed.
func (r *AsyncMetricRecorder) sendEvent(ctx context.Context, event MetricEvent) {
	// The event outlives the caller; keep its values but not its cancellation.
	event.Ctx = context.WithoutCancel(ctx)
	select {
	case <-r.stopCh:
		logger.Debugf("AsyncMetricRecorder: Recorder closed, event discarded (type: %s).", event.Type)
		return
	default:
	}
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, stage: %s, client: %s). Event discarded.", event.Type, event.Stage, event.Client)
	}
}

func (r *AsyncMetricRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStageStart, Stage: stage})
}

func (r *AsyncMetricRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStageEnd, Stage: stage, Status: status, Duration: duration})
}

func (r *AsyncMetricRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItem, Stage: stage, Success: success})
}

func (r *AsyncMetricRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunk, Stage: stage, Count: size})
}

func (r *AsyncMetricRecorder) RecordRetry(ctx context.Context, client string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRetry, Client: client, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRateLimitWait, Client: client, Duration: waited})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorderWrapper is a helper function for use with fx.Decorate.
// It wraps the provided recorder unless metrics.async_buffer_size is 0, and closes the
// wrapper when the application stops.
func NewAsyncMetricRecorderWrapper(lc fx.Lifecycle, cfg *config.Config, rec metrics.MetricRecorder) metrics.MetricRecorder {
	size := cfg.Notepipe.Metrics.AsyncBufferSize
	if size == 0 {
		return rec
	}
	async := NewAsyncMetricRecorder(size, rec)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			async.Close()
			return nil
		},
	})
	return async
}
