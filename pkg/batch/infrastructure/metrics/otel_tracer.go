package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	logger "github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// instrumentationName identifies the spans and instruments created by this package.
const instrumentationName = "github.com/tigerroll/notepipe/pkg/batch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a Tracer from an OpenTelemetry TracerProvider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

// StartStageSpan starts a new span for a stage run.
func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, stage model.Stage) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "stage "+stage.String(),
		trace.WithAttributes(attribute.String("notepipe.stage", stage.String())))
	logger.Debugf("Tracer: OTel span started for stage '%s'", stage)
	return ctx, func() { span.End() }
}

// StartChunkSpan starts a new span for one chunk of a stage run.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, stage model.Stage, chunk int, size int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("chunk %s/%d", stage, chunk),
		trace.WithAttributes(
			attribute.String("notepipe.stage", stage.String()),
			attribute.Int("notepipe.chunk.index", chunk),
			attribute.Int("notepipe.chunk.size", size),
		))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span and marks it as failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("notepipe.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
