package milestone

import (
	"storefront-rewards/services/ledger"

	"go.uber.org/fx"
)

var Module = fx.Module("milestone.detector",
	fx.Provide(
		NewDetector,
		fx.Annotate(
			func(d *Detector) ledger.Observer { return d },
			fx.ResultTags(`group:"ledger.observers"`),
		),
	),
)
