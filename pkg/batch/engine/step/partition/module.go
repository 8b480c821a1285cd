package partition

import "go.uber.org/fx"

// Module provides the BoundedBatchRunner.
var Module = fx.Options(
	fx.Provide(NewBoundedBatchRunner),
)
