package notification

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.dispatcher",
	fx.Provide(NewDispatcher),
)

var Worker = fx.Module("notification.worker",
	fx.Provide(NewHandler),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(TypeDeliver, h.HandleDeliver)
}
