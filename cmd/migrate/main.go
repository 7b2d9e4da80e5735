package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db"
	"reviewcamp/pkg/hashistack/secretmanager"
	"reviewcamp/pkg/logger"
	"reviewcamp/services/bootstrap"
)

func main() {
	var svc *bootstrap.Service

	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(bootstrap.NewService),
		fx.Populate(&svc),
		fx.WithLogger(func(*zap.Logger) fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("failed to build app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := svc.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}
