// Package scenario builds campaigns and applications in a test database for
// the services that sit on top of them.
package scenario

import (
	"context"
	"testing"
	"time"

	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/notification"
	"reviewcamp/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	Client = access.Actor{ID: "client-1", Role: access.RoleClient}
	Admin  = access.Actor{ID: "admin-1", Role: access.RoleAdmin}
)

func Reviewer(id string) access.Actor {
	return access.Actor{ID: id, Role: access.RoleReviewer}
}

type World struct {
	DB           *gorm.DB
	Node         *snowflake.Node
	Seq          sequence.Generator
	Dispatch     *notification.Dispatcher
	Campaigns    *campaign.Service
	Applications *application.Service
}

// New migrates the campaign and application tables plus models and wires
// both services. A nil notifier logs.
func New(t *testing.T, n notification.Notifier, models ...any) *World {
	t.Helper()

	all := append(campaign.Models(), application.Models()...)
	db := testutil.NewTestDB(t, append(all, models...)...)
	node := testutil.NewNode(t)
	seq := sequence.NewMemoryGenerator()
	dispatch := notification.NewDispatcher(n)

	campaigns := campaign.NewService(campaign.ServiceParams{DB: db, Node: node, Seq: seq, Dispatch: dispatch})
	return &World{
		DB:        db,
		Node:      node,
		Seq:       seq,
		Dispatch:  dispatch,
		Campaigns: campaigns,
		Applications: application.NewService(application.ServiceParams{
			DB:        db,
			Node:      node,
			Campaigns: campaigns,
			Dispatch:  dispatch,
		}),
	}
}

func ptr[T any](v T) *T { return &v }

// Input is a naver+coupang campaign with three seats each, a 3000 point fee on
// naver, 2000 on coupang and a 500 point bonus.
func Input(now time.Time) campaign.Input {
	return campaign.Input{
		Title:               "Vitamin C serum",
		ProductName:         "Serum 30ml",
		ProductPrice:        15000,
		Platform:            campaign.PlatformBoth,
		NaverRecruitCount:   ptr(int64(3)),
		CoupangRecruitCount: ptr(int64(3)),
		NaverRewardPoint:    3000,
		CoupangRewardPoint:  2000,
		BonusPoint:          500,
		RecruitStartAt:      ptr(now.Add(-time.Hour)),
		RecruitEndAt:        ptr(now.Add(24 * time.Hour)),
		AnnounceAt:          ptr(now.Add(48 * time.Hour)),
		ReviewDeadlineAt:    ptr(now.Add(240 * time.Hour)),
	}
}

// PendingCampaign creates and submits a campaign.
func (w *World) PendingCampaign(t *testing.T, in campaign.Input) *campaign.Campaign {
	t.Helper()
	ctx := context.Background()

	c, err := w.Campaigns.Create(ctx, Client, in)
	require.NoError(t, err)
	c, err = w.Campaigns.Submit(ctx, Client, c.ID)
	require.NoError(t, err)
	return c
}

func (w *World) RecruitingCampaign(t *testing.T, in campaign.Input) *campaign.Campaign {
	t.Helper()
	c := w.PendingCampaign(t, in)
	c, err := w.Campaigns.Approve(context.Background(), Admin, c.ID)
	require.NoError(t, err)
	return c
}

// Selected applies reviewerID to c on p and selects the application.
func (w *World) Selected(t *testing.T, c *campaign.Campaign, reviewerID string, p campaign.Platform) *application.Application {
	t.Helper()
	ctx := context.Background()

	app, err := w.Applications.Apply(ctx, Reviewer(reviewerID), application.ApplyInput{CampaignID: c.ID, Platform: p})
	require.NoError(t, err)
	app, err = w.Applications.Select(ctx, Admin, app.ID)
	require.NoError(t, err)
	return app
}
