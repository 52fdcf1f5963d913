package referral

import "go.uber.org/fx"

var Module = fx.Module("referral.tracker",
	fx.Provide(NewTracker),
)
