package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
)

// Module provides the logging stage listener.
var Module = fx.Provide(fx.Annotate(
	NewLoggingStageListener,
	fx.As(new(port.StageListener)),
	fx.ResultTags(`group:"stage_listeners"`),
))
