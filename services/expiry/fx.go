package expiry

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("expiry.service",
	fx.Provide(NewService),
)

// Scheduled adds the daily enqueue loop on top of the service.
var Scheduled = fx.Module("expiry.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

var Worker = fx.Module("expiry.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(TypeExpiryRun, s.HandleRun)
}
