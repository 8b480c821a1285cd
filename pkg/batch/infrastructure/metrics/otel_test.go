package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	infra "github.com/tigerroll/notepipe/pkg/batch/infrastructure/metrics"
)

func TestOpenTelemetryTracer_NestsChunkUnderStage(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := infra.NewOpenTelemetryTracer(tp)

	ctx, endStage := tracer.StartStageSpan(context.Background(), model.StageEnrichment)
	chunkCtx, endChunk := tracer.StartChunkSpan(ctx, model.StageEnrichment, 0, 5)
	tracer.RecordEvent(chunkCtx, "item.failed", map[string]interface{}{"item.id": "3", "attempts": 6})
	endChunk()
	tracer.RecordError(ctx, "orchestrator", errors.New("disk full"))
	endStage()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	chunk, stage := spans[0], spans[1]

	assert.Equal(t, "chunk enrichment/0", chunk.Name())
	assert.Equal(t, "stage enrichment", stage.Name())
	assert.Equal(t, stage.SpanContext().SpanID(), chunk.Parent().SpanID())

	require.Len(t, chunk.Events(), 1)
	assert.Equal(t, "item.failed", chunk.Events()[0].Name)
	assert.Contains(t, chunk.Events()[0].Attributes, attribute.Int("attempts", 6))

	assert.Equal(t, codes.Error, stage.Status().Code)
	assert.Equal(t, "disk full", stage.Status().Description)
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is a sum", name)
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestOTelMetricRecorder_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := infra.NewOTelMetricRecorder(mp)
	require.NoError(t, err)
	ctx := context.Background()

	r.RecordItem(ctx, model.StageFinalMerge, true)
	r.RecordItem(ctx, model.StageFinalMerge, false)
	r.RecordItem(ctx, model.StageFinalMerge, true)
	r.RecordRetry(ctx, "completion", "unavailable")
	r.RecordStageEnd(ctx, model.StageFinalMerge, model.StatusCompleted, time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumValue(t, rm, "notepipe.items",
		attribute.String("stage", "final_merge"), attribute.String("outcome", "processed")))
	assert.Equal(t, int64(1), sumValue(t, rm, "notepipe.items",
		attribute.String("stage", "final_merge"), attribute.String("outcome", "failed")))
	assert.Equal(t, int64(1), sumValue(t, rm, "notepipe.client.retries",
		attribute.String("client", "completion"), attribute.String("reason", "unavailable")))
}

func TestNewMetricRecorder_SelectsBackends(t *testing.T) {
	cfg := config.NewConfig()
	lc := fxtest.NewLifecycle(t)
	p := infra.ProviderParams{Lifecycle: lc, Config: cfg}

	mp, err := infra.NewMeterProviderFromConfig(p)
	require.NoError(t, err)
	rec, err := infra.NewMetricRecorder(p, mp)
	require.NoError(t, err)
	assert.IsType(t, &metrics.NoOpMetricRecorder{}, rec, "no backend enabled by default")

	tp, err := infra.NewTracerProviderFromConfig(p)
	require.NoError(t, err)
	assert.IsType(t, &metrics.NoOpTracer{}, infra.NewTracer(cfg, tp))

	cfg.Notepipe.Metrics.Prometheus.Enabled = true
	cfg.Notepipe.Metrics.Prometheus.ListenAddr = "127.0.0.1:0"
	rec, err = infra.NewMetricRecorder(p, mp)
	require.NoError(t, err)
	multi, ok := rec.(metrics.MultiRecorder)
	require.True(t, ok)
	assert.Len(t, multi, 1)

	lc.RequireStart().RequireStop()
}
