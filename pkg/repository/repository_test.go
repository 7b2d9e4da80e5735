package repository

import (
	"context"
	"testing"

	"reviewcamp/services/testutil"

	"github.com/stretchr/testify/require"
)

type account struct {
	ID      string `gorm:"primaryKey"`
	OwnerID string
	Balance int64
}

func TestFindOneWithEmptyKeyMatchesNothing(t *testing.T) {
	db := testutil.NewTestDB(t, &account{})
	store := ProvideStore[account](db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &account{ID: "a-1", OwnerID: "alice", Balance: 7000}))

	got, err := store.FindOne(ctx, &account{ID: ""})
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.FindOne(ctx, nil)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.FindOne(ctx, &account{OwnerID: "alice"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "a-1", got.ID)
}
