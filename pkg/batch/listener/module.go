package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/pkg/batch/listener/logging"
	"github.com/tigerroll/notepipe/pkg/batch/listener/metrics"
	"github.com/tigerroll/notepipe/pkg/batch/listener/tracing"
)

// Module aggregates all stage listener modules. Each contributes to the
// `group:"stage_listeners"` value group consumed by the orchestrator.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
)
