package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storefront-rewards/internal/httpapi"
	"storefront-rewards/pkg/config"
	"storefront-rewards/pkg/db"
	"storefront-rewards/pkg/health"
	"storefront-rewards/pkg/logger"
	"storefront-rewards/pkg/otelcol"
	"storefront-rewards/pkg/otelcol/exporters"
	"storefront-rewards/pkg/profiling"
	"storefront-rewards/pkg/redis"
	"storefront-rewards/pkg/sequence"
	"storefront-rewards/pkg/server"
	"storefront-rewards/pkg/task"
	"storefront-rewards/services/award"
	"storefront-rewards/services/bootstrap"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/milestone"
	"storefront-rewards/services/notification"
	"storefront-rewards/services/order"
	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/redemption"
	"storefront-rewards/services/referral"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		profiling.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
			exporters.ProvideGrpc,
			provideTracerProvider,
			provideMeterProvider,
		),
		fx.Invoke(
			registerTracerProvider,
			db.Otel,
			db.Metric,
		),
		bootstrap.Module,
		pointsconfig.Module,
		order.Module,
		notification.Module,
		milestone.Module,
		ledger.Module,
		ledger.Health,
		award.Module,
		redemption.Module,
		referral.Module,
		httpapi.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
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
	return snowflake.NewNode(1)
}

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func registerTracerProvider(lc fx.Lifecycle, cfg *config.Config, exporter *otlptrace.Exporter) {
	if cfg.Otel.Addr == "" {
		return
	}

	tp := otelcol.ProvideTrace(exporter)
	otel.SetTracerProvider(tp)

	lc.Append(fx.StopHook(tp.Shutdown))
}
