package campaign

import (
	"context"
	"sync"
	"testing"
	"time"

	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/notification"
	"reviewcamp/services/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	client = access.Actor{ID: "client-1", Role: access.RoleClient}
	other  = access.Actor{ID: "client-2", Role: access.RoleClient}
	admin  = access.Actor{ID: "admin-1", Role: access.RoleAdmin}
)

func newTestService(t *testing.T, n notification.Notifier) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	if n == nil {
		n = notification.LogNotifier{}
	}
	return NewService(ServiceParams{
		DB:       db,
		Node:     testutil.NewNode(t),
		Seq:      sequence.NewMemoryGenerator(),
		Dispatch: notification.NewDispatcher(n),
	}), db
}

func ptr[T any](v T) *T { return &v }

func validInput(now time.Time) Input {
	return Input{
		Title:               "Hand cream review",
		ProductName:         "Hand cream 50ml",
		ProductPrice:        12000,
		Platform:            PlatformBoth,
		NaverRecruitCount:   ptr(int64(5)),
		CoupangRecruitCount: ptr(int64(3)),
		NaverRewardPoint:    3000,
		CoupangRewardPoint:  2000,
		RecruitStartAt:      ptr(now.Add(-time.Hour)),
		RecruitEndAt:        ptr(now.Add(24 * time.Hour)),
		AnnounceAt:          ptr(now.Add(48 * time.Hour)),
		ReviewDeadlineAt:    ptr(now.Add(14 * 24 * time.Hour)),
	}
}

func recruiting(t *testing.T, svc *Service, in Input) *Campaign {
	t.Helper()
	ctx := context.Background()

	c, err := svc.Create(ctx, client, in)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)
	c, err = svc.Approve(ctx, admin, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRecruiting, c.Status)
	return c
}

func TestCreateCampaign(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	c, err := svc.Create(context.Background(), client, validInput(now))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, "client-1", c.ClientID)
	require.NotEmpty(t, c.Code)
	require.Contains(t, c.Slug, "hand-cream-review")
	require.EqualValues(t, 8, c.TotalRecruitCount())
}

func TestCreateDropsSeatsForMarketplacesNotOffered(t *testing.T) {
	svc, _ := newTestService(t, nil)
	in := validInput(time.Now().UTC())
	in.Platform = PlatformNaver

	c, err := svc.Create(context.Background(), client, in)
	require.NoError(t, err)
	require.Nil(t, c.CoupangRecruitCount)
	require.EqualValues(t, 0, c.RecruitCountFor(PlatformCoupang))
	require.EqualValues(t, 5, c.TotalRecruitCount())
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	cases := map[string]func(*Input){
		"missing title":       func(in *Input) { in.Title = " " },
		"unknown platform":    func(in *Input) { in.Platform = "gmarket" },
		"negative seats":      func(in *Input) { in.NaverRecruitCount = ptr(int64(-1)) },
		"missing seats":       func(in *Input) { in.CoupangRecruitCount = nil },
		"announce before end": func(in *Input) { in.AnnounceAt = ptr(now) },
		"payback without price": func(in *Input) {
			in.PaybackProductPrice = true
			in.ProductPrice = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput(now)
			mutate(&in)
			_, err := svc.Create(context.Background(), client, in)
			require.ErrorIs(t, err, errutil.ErrValidation)
		})
	}
}

func TestReviewerCannotCreate(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Create(context.Background(), access.Actor{ID: "rv-1", Role: access.RoleReviewer}, validInput(time.Now()))
	require.ErrorIs(t, err, errutil.ErrForbidden)
}

func TestUpdateOnlyInDraft(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := svc.Create(ctx, client, validInput(now))
	require.NoError(t, err)

	in := validInput(now)
	in.Title = "Body lotion review"
	updated, err := svc.Update(ctx, client, c.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Body lotion review", updated.Title)
	require.Equal(t, c.Code, updated.Code)

	_, err = svc.Update(ctx, other, c.ID, in)
	require.Error(t, err)

	_, err = svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, client, c.ID, in)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)
}

func TestSubmitRequiresCompleteCampaign(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	in := validInput(time.Now().UTC())
	in.ReviewDeadlineAt = nil
	c, err := svc.Create(ctx, client, in)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, client, c.ID)
	require.ErrorIs(t, err, errutil.ErrValidation)

	in = validInput(time.Now().UTC())
	in.NaverRecruitCount = ptr(int64(0))
	in.CoupangRecruitCount = ptr(int64(0))
	c, err = svc.Create(ctx, client, in)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, client, c.ID)
	require.ErrorIs(t, err, errutil.ErrValidation)
}

func TestApproveNotifiesClientOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := notification.NewMockNotifier(ctrl)
	mock.EXPECT().
		Notify(gomock.Any(), "client-1", notification.KindCampaignApproved, gomock.Any()).
		Return(nil).
		Times(1)

	svc, _ := newTestService(t, mock)
	ctx := context.Background()
	c := recruiting(t, svc, validInput(time.Now().UTC()))
	require.Equal(t, ApprovalByAdmin, c.ApprovalSource)
	require.Equal(t, "admin-1", c.ApprovedBy)

	again, err := svc.Approve(ctx, admin, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRecruiting, again.Status)
}

func TestApproveRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, client, validInput(time.Now().UTC()))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, client, c.ID)
	require.ErrorIs(t, err, errutil.ErrForbidden)
}

func TestApproveDraftIsInvalid(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, client, validInput(time.Now().UTC()))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, admin, c.ID)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)
}

func TestConcurrentActivationFiresOnce(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, client, validInput(time.Now().UTC()))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	sources := []ApprovalSource{ApprovalByAdmin, ApprovalByPayment, ApprovalByAdmin, ApprovalByPayment}
	for _, src := range sources {
		wg.Add(1)
		go func(src ApprovalSource) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				_, ok, err := svc.ActivateTx(ctx, tx, c.ID, src, "actor")
				if ok {
					mu.Lock()
					fired++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}(src)
	}
	wg.Wait()
	require.Equal(t, 1, fired)
}

func TestRejectReturnsToDraft(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, client, validInput(time.Now().UTC()))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, admin, c.ID, "images missing")
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	_, err = svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, admin, c.ID, "")
	require.ErrorIs(t, err, errutil.ErrValidation)

	rejected, err := svc.Reject(ctx, admin, c.ID, "images missing")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, rejected.Status)
	require.Equal(t, "images missing", rejected.RejectionReason)

	resubmitted, err := svc.Submit(ctx, client, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, resubmitted.Status)
	require.Empty(t, resubmitted.RejectionReason)
}

func TestLifecycleToCompletion(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	c := recruiting(t, svc, validInput(time.Now().UTC()))

	_, err := svc.StartProgress(ctx, admin, c.ID)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	c, err = svc.Close(ctx, client, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, c.Status)
	require.NotNil(t, c.ClosedAt)

	c, err = svc.StartProgress(ctx, admin, c.ID)
	require.NoError(t, err)
	c, err = svc.StartReviewing(ctx, admin, c.ID)
	require.NoError(t, err)
	c, err = svc.Complete(ctx, admin, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, c.Status)
	require.True(t, c.IsTerminal())

	_, err = svc.Cancel(ctx, client, c.ID, "too late")
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	c := recruiting(t, svc, validInput(time.Now().UTC()))

	_, err := svc.Cancel(ctx, other, c.ID, "not mine")
	require.Error(t, err)

	cancelled, err := svc.Cancel(ctx, client, c.ID, "out of stock")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "out of stock", cancelled.CancelReason)

	again, err := svc.Cancel(ctx, client, c.ID, "out of stock")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, again.Status)
}

func TestCloseExpired(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	in := validInput(now)
	open := recruiting(t, svc, in)

	in.RecruitStartAt = ptr(now.Add(-72 * time.Hour))
	in.RecruitEndAt = ptr(now.Add(-time.Hour))
	in.AnnounceAt = ptr(now.Add(time.Hour))
	expired := recruiting(t, svc, in)

	closed, err := svc.CloseExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []string{expired.ID}, closed)

	got, err := svc.Get(ctx, open.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRecruiting, got.Status)

	closed, err = svc.CloseExpired(ctx, now)
	require.NoError(t, err)
	require.Empty(t, closed)
}

func TestAdvanceSchedule(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	in := validInput(now)
	in.RecruitStartAt = ptr(now.Add(-20 * 24 * time.Hour))
	in.RecruitEndAt = ptr(now.Add(-19 * 24 * time.Hour))
	in.AnnounceAt = ptr(now.Add(-18 * 24 * time.Hour))
	in.ReviewDeadlineAt = ptr(now.Add(-time.Hour))
	c := recruiting(t, svc, in)

	_, err := svc.CloseExpired(ctx, now)
	require.NoError(t, err)

	moved, err := svc.AdvanceSchedule(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, moved)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReviewing, got.Status)
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, errutil.ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, client, validInput(now))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, other, validInput(now))
	require.NoError(t, err)

	page, info, err := svc.List(ctx, ListFilter{ClientID: client.ID}, pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.True(t, info.HasMore)

	rest, info, err := svc.List(ctx, ListFilter{ClientID: client.ID}, pagination.Pagination{Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.False(t, info.HasMore)
}
