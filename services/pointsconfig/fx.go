package pointsconfig

import "go.uber.org/fx"

var Module = fx.Module("pointsconfig.service",
	fx.Provide(NewResolver),
)
