package bootstrap

import (
	"context"
	"fmt"

	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/ledger"
	"reviewcamp/services/payment"
	"reviewcamp/services/review"
	"reviewcamp/services/scheduler"
	"reviewcamp/services/verification"
	"reviewcamp/services/withdrawal"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the platform in dependency order.
func Models() []any {
	var models []any
	for _, group := range [][]any{
		campaign.Models(),
		application.Models(),
		verification.Models(),
		review.Models(),
		ledger.Models(),
		withdrawal.Models(),
		payment.Models(),
		scheduler.Models(),
	} {
		models = append(models, group...)
	}
	return models
}

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// Migrate brings the schema up to date with the current models.
func (s *Service) Migrate(ctx context.Context) error {
	models := Models()
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return fmt.Errorf("migrate schema: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(models)))
	return nil
}
