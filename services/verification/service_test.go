package verification

import (
	"context"
	"testing"
	"time"

	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/evidence"
	"reviewcamp/services/internal/scenario"
	"reviewcamp/services/notification"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var receipt = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR receipt")

func newTestService(t *testing.T, n notification.Notifier) (*Service, *scenario.World, *evidence.MemoryStore) {
	t.Helper()
	w := scenario.New(t, n, Models()...)
	store := evidence.NewMemoryStore()
	return NewService(ServiceParams{
		DB:           w.DB,
		Node:         w.Node,
		Applications: w.Applications,
		Evidence:     store,
		Dispatch:     w.Dispatch,
	}), w, store
}

func submit(orderNo string) SubmitInput {
	return SubmitInput{OrderNumber: orderNo, Files: []evidence.File{{Name: "receipt.png", Data: receipt}}}
}

func TestSubmitStoresEvidence(t *testing.T) {
	svc, w, store := newTestService(t, nil)
	c := w.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := w.Selected(t, c, "rv-1", campaign.PlatformNaver)

	in := submit("2024-0001")
	in.URLs = []string{"https://cdn.example.com/prior.png"}
	v, err := svc.Submit(context.Background(), scenario.Reviewer("rv-1"), app.ID, in)
	require.NoError(t, err)
	require.Equal(t, StatusPending, v.Status)
	require.Equal(t, c.ID, v.CampaignID)
	require.Len(t, v.EvidenceURLs, 2)
	require.Equal(t, "https://cdn.example.com/prior.png", v.EvidenceURLs[0])
	require.Equal(t, 1, store.Len())

	got, err := svc.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, v.EvidenceURLs, got.EvidenceURLs)
}

func TestSubmitOncePerApplication(t *testing.T) {
	svc, w, _ := newTestService(t, nil)
	ctx := context.Background()
	c := w.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := w.Selected(t, c, "rv-1", campaign.PlatformNaver)

	_, err := svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, submit("A-1"))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, submit("A-2"))
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, err.(errutil.BaseError).Code)
}

func TestSubmitRequiresSelectedOwnApplication(t *testing.T) {
	svc, w, _ := newTestService(t, nil)
	ctx := context.Background()
	c := w.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))

	applied, err := w.Applications.Apply(ctx, scenario.Reviewer("rv-1"), application.ApplyInput{CampaignID: c.ID, Platform: campaign.PlatformNaver})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, scenario.Reviewer("rv-1"), applied.ID, submit("A-1"))
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	_, err = w.Applications.Select(ctx, scenario.Admin, applied.ID)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, scenario.Reviewer("rv-2"), applied.ID, submit("A-1"))
	require.ErrorIs(t, err, errutil.ErrForbidden)

	_, err = svc.Submit(ctx, scenario.Reviewer("rv-1"), applied.ID, SubmitInput{OrderNumber: " "})
	require.ErrorIs(t, err, errutil.ErrValidation)
}

func TestApproveAndRequireApproved(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := notification.NewMockNotifier(ctrl)
	mock.EXPECT().Notify(gomock.Any(), "client-1", notification.KindCampaignApproved, gomock.Any()).Return(nil)
	mock.EXPECT().Notify(gomock.Any(), "rv-1", notification.KindApplicationSelected, gomock.Any()).Return(nil)
	mock.EXPECT().Notify(gomock.Any(), "rv-1", notification.KindVerificationApproved, gomock.Any()).Return(nil).Times(1)

	svc, w, _ := newTestService(t, mock)
	ctx := context.Background()
	c := w.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := w.Selected(t, c, "rv-1", campaign.PlatformNaver)

	err := svc.RequireApproved(ctx, w.DB, app.ID)
	require.ErrorIs(t, err, errutil.ErrVerificationRequired)

	v, err := svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, submit("A-1"))
	require.NoError(t, err)
	require.ErrorIs(t, svc.RequireApproved(ctx, w.DB, app.ID), errutil.ErrVerificationRequired)

	_, err = svc.Approve(ctx, scenario.Reviewer("rv-1"), v.ID)
	require.ErrorIs(t, err, errutil.ErrForbidden)

	approved, err := svc.Approve(ctx, scenario.Admin, v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "admin-1", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	_, err = svc.Approve(ctx, scenario.Admin, v.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RequireApproved(ctx, w.DB, app.ID))

	_, err = svc.Reject(ctx, scenario.Admin, v.ID, "blurry")
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)
}

func TestReject(t *testing.T) {
	svc, w, _ := newTestService(t, nil)
	ctx := context.Background()
	c := w.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := w.Selected(t, c, "rv-1", campaign.PlatformCoupang)

	v, err := svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, submit("A-1"))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, scenario.Admin, v.ID, "")
	require.ErrorIs(t, err, errutil.ErrValidation)

	rejected, err := svc.Reject(ctx, scenario.Admin, v.ID, "order number does not match")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "order number does not match", rejected.RejectionReason)

	err = svc.RequireApproved(ctx, w.DB, app.ID)
	require.ErrorIs(t, err, errutil.ErrVerificationRequired)

	released, err := w.Applications.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, application.StatusCancelled, released.Status)
	require.NotNil(t, released.CancelledAt)
	require.Contains(t, released.RejectionReason, "order number does not match")

	again, err := svc.Reject(ctx, scenario.Admin, v.ID, "order number does not match")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, again.Status)

	pending, _, err := svc.ListByStatus(ctx, StatusPending, pagination.Pagination{})
	require.NoError(t, err)
	require.Empty(t, pending)
}
