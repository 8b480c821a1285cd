package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	logger "github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Stage Metrics
	stageRunsCounter     *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec

	// Item and chunk Metrics
	itemCounter   *prometheus.CounterVec
	chunkSizeHist *prometheus.HistogramVec

	// External call Metrics
	retryCounter         *prometheus.CounterVec
	rateLimitWaitSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		stageRunsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notepipe_stage_runs_total",
			Help: "Total number of stage runs started.",
		}, []string{"stage"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notepipe_stage_duration_seconds",
			Help:    "Duration of stage runs by final status.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"stage", "status"}),
		itemCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notepipe_items_total",
			Help: "Total items settled by stage and outcome.",
		}, []string{"stage", "outcome"}), // outcome: processed, failed
		chunkSizeHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notepipe_chunk_size",
			Help:    "Number of ids handed to the batch runner per chunk.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}, []string{"stage"}),
		retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notepipe_client_retries_total",
			Help: "Total retried external calls by client and reason.",
		}, []string{"client", "reason"}),
		rateLimitWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notepipe_rate_limit_wait_seconds",
			Help:    "Suspensions imposed by a client's token budget.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"client"}),
	}

	// Register all metrics with the registry.
	registry.MustRegister(r.stageRunsCounter)
	registry.MustRegister(r.stageDurationSeconds)
	registry.MustRegister(r.itemCounter)
	registry.MustRegister(r.chunkSizeHist)
	registry.MustRegister(r.retryCounter)
	registry.MustRegister(r.rateLimitWaitSeconds)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordStageStart records the start of a stage run.
func (r *PrometheusRecorder) RecordStageStart(ctx context.Context, stage model.Stage) {
	r.stageRunsCounter.WithLabelValues(stage.String()).Inc()
	logger.Debugf("Metrics: Stage '%s' started.", stage)
}

// RecordStageEnd records the end of a stage run.
func (r *PrometheusRecorder) RecordStageEnd(ctx context.Context, stage model.Stage, status model.StageStatus, duration time.Duration) {
	r.stageDurationSeconds.WithLabelValues(stage.String(), status.String()).Observe(duration.Seconds())
	logger.Debugf("Metrics: Stage '%s' ended (%s). Duration: %.3fs", stage, status, duration.Seconds())
}

// RecordItem records the settlement of one item.
func (r *PrometheusRecorder) RecordItem(ctx context.Context, stage model.Stage, success bool) {
	outcome := "failed"
	if success {
		outcome = "processed"
	}
	r.itemCounter.WithLabelValues(stage.String(), outcome).Inc()
}

// RecordChunk records the size of a chunk.
func (r *PrometheusRecorder) RecordChunk(ctx context.Context, stage model.Stage, size int) {
	r.chunkSizeHist.WithLabelValues(stage.String()).Observe(float64(size))
}

// RecordRetry records a retried external call.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, client string, reason string) {
	r.retryCounter.WithLabelValues(client, reason).Inc()
}

// RecordRateLimitWait records a rate limiter suspension.
func (r *PrometheusRecorder) RecordRateLimitWait(ctx context.Context, client string, waited time.Duration) {
	r.rateLimitWaitSeconds.WithLabelValues(client).Observe(waited.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
