package httpapi

import (
	"storefront-rewards/pkg/config"
	"storefront-rewards/pkg/health"
	"storefront-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, ProvideEngine),
	fx.Invoke(registerRoutes),
)

func ProvideEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.ErrorHandler())
	return engine
}

type routeParams struct {
	fx.In

	Engine  *gin.Engine
	Handler *Handler
	Health  health.HealthService
}

func registerRoutes(p routeParams) {
	p.Engine.GET("/healthz", p.Health.Liveness)
	p.Engine.GET("/readyz", p.Health.Readiness)

	v1 := p.Engine.Group("/v1")
	{
		events := v1.Group("/events")
		{
			events.POST("/order-completed", p.Handler.OrderCompleted)
			events.POST("/quiz-completed", p.Handler.QuizCompleted)
		}

		v1.POST("/referrals", p.Handler.CreateReferral)
		v1.POST("/redemptions", p.Handler.Redeem)

		users := v1.Group("/users")
		{
			users.GET("/:id/balance", p.Handler.GetBalance)
			users.GET("/:id/ledger", p.Handler.ListEntries)
			users.GET("/:id/ledger/reconcile", p.Handler.Reconcile)
			users.GET("/:id/milestones", p.Handler.ListMilestones)
			users.GET("/:id/referrals", p.Handler.ListReferrals)
		}

		v1.POST("/points-config", p.Handler.CreatePointsConfig)
		v1.GET("/points-config/active", p.Handler.ActivePointsConfig)
	}
}
