package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"reviewcamp/internal/httpapi"
	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db"
	"reviewcamp/pkg/featureflags"
	"reviewcamp/pkg/gen"
	"reviewcamp/pkg/hashistack/secretmanager"
	"reviewcamp/pkg/hashistack/servicediscover"
	"reviewcamp/pkg/health"
	"reviewcamp/pkg/kafka"
	"reviewcamp/pkg/logger"
	"reviewcamp/pkg/minio"
	"reviewcamp/pkg/otelcol"
	"reviewcamp/pkg/profiling"
	"reviewcamp/pkg/redis"
	"reviewcamp/pkg/sequence"
	"reviewcamp/pkg/server"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/billing"
	"reviewcamp/services/bootstrap"
	"reviewcamp/services/campaign"
	"reviewcamp/services/contentcheck"
	"reviewcamp/services/evidence"
	"reviewcamp/services/ledger"
	"reviewcamp/services/notification"
	"reviewcamp/services/payment"
	"reviewcamp/services/review"
	"reviewcamp/services/verification"
	"reviewcamp/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		gen.Module,
		kafka.Module,
		minio.Client,
		featureflags.Module,
		otelcol.Module,
		profiling.Module,

		access.Module,
		notification.Module,
		evidence.Module,
		contentcheck.Module,
		billing.Module,
		campaign.Module,
		application.Module,
		verification.Module,
		review.Module,
		ledger.Module,
		withdrawal.Module,
		payment.Module,
		bootstrap.Module,

		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		servicediscover.Module,
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
