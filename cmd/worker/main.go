package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db"
	"reviewcamp/pkg/featureflags"
	"reviewcamp/pkg/gen"
	"reviewcamp/pkg/hashistack/secretmanager"
	"reviewcamp/pkg/kafka"
	"reviewcamp/pkg/logger"
	"reviewcamp/pkg/minio"
	"reviewcamp/pkg/profiling"
	"reviewcamp/pkg/redis"
	"reviewcamp/pkg/sequence"
	"reviewcamp/pkg/task"
	"reviewcamp/services/application"
	"reviewcamp/services/billing"
	"reviewcamp/services/campaign"
	"reviewcamp/services/contentcheck"
	"reviewcamp/services/evidence"
	"reviewcamp/services/ledger"
	"reviewcamp/services/notification"
	"reviewcamp/services/payment"
	"reviewcamp/services/review"
	"reviewcamp/services/scheduler"
	"reviewcamp/services/verification"
)

// The worker owns the periodic jobs: a ticker enqueues one asynq task per
// job and the asynq server runs them against the domain services.
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
		profiling.Module,

		notification.Module,
		evidence.Module,
		contentcheck.Module,
		billing.Module,
		campaign.Module,
		application.Module,
		verification.Module,
		review.Module,
		ledger.Module,
		payment.Module,

		task.Client,
		task.Server,
		scheduler.Module,
		scheduler.SchedulerModule,
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
