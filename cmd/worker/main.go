package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storefront-rewards/pkg/config"
	"storefront-rewards/pkg/db"
	"storefront-rewards/pkg/logger"
	"storefront-rewards/pkg/redis"
	"storefront-rewards/pkg/task"
	"storefront-rewards/services/expiry"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/notification"
	"storefront-rewards/services/pointsconfig"
)

// The worker consumes the rewards and notifications queues and runs the
// daily expiry scheduler. It shares the database with the API binary but
// serves no HTTP or gRPC traffic.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(provideSnowflakeNode),
		pointsconfig.Module,
		ledger.Module,
		expiry.Module,
		expiry.Scheduled,
		expiry.Worker,
		notification.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
