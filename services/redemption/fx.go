package redemption

import "go.uber.org/fx"

var Module = fx.Module("redemption.engine",
	fx.Provide(NewEngine),
)
