package bootstrap

import (
	"context"
	"testing"

	"reviewcamp/services/campaign"
	"reviewcamp/services/ledger"
	"reviewcamp/services/payment"
	"reviewcamp/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrateCreatesEveryTable(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(ServiceParams{DB: db})

	require.NoError(t, svc.Migrate(context.Background()))

	for _, model := range []any{&campaign.Campaign{}, &ledger.PointTransaction{}, &payment.CampaignPayment{}} {
		require.True(t, db.Migrator().HasTable(model))
	}

	require.NoError(t, svc.Migrate(context.Background()))
}
