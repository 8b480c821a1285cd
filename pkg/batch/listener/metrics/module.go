package metrics

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
)

// Module provides the metrics stage listener.
var Module = fx.Options(
	// The concrete MetricRecorder is provided by infrastructure/metrics; it is decorated here
	// to be asynchronous.
	fx.Decorate(NewAsyncMetricRecorderWrapper),

	fx.Provide(fx.Annotate(
		NewMetricsStageListener,
		fx.As(new(port.StageListener)),
		fx.ResultTags(`group:"stage_listeners"`),
	)),
)
