package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
)

// Module provides the tracing stage listener.
// The concrete Tracer is provided by the infrastructure layer (pkg/batch/infrastructure/metrics).
var Module = fx.Provide(fx.Annotate(
	NewTracingStageListener,
	fx.As(new(port.StageListener)),
	fx.ResultTags(`group:"stage_listeners"`),
))
