package award

import "go.uber.org/fx"

var Module = fx.Module("award.engine",
	fx.Provide(NewEngine),
)
