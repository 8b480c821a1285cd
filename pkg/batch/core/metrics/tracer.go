package metrics

import (
	"context"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of stage runs.
type Tracer interface {
	// StartStageSpan starts a span for one run of stage.
	//
	// Returns: A context carrying the span, and a function that ends it.
	//          It is recommended to call the returned function in a defer statement.
	StartStageSpan(ctx context.Context, stage model.Stage) (context.Context, func())

	// StartChunkSpan starts a child span for one chunk of the stage.
	StartChunkSpan(ctx context.Context, stage model.Stage, chunk int, size int) (context.Context, func())

	// RecordError records err on the current span.
	//
	// ctx: The context with the current span.
	// module: The component where the error occurred (e.g., "orchestrator", "tracker").
	// err: The error to record.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records a named event with attributes on the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
