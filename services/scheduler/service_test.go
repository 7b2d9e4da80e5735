package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"reviewcamp/pkg/repository"
	"reviewcamp/pkg/taskname"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/notification"
	"reviewcamp/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeCampaigns struct {
	closed   []string
	advanced int
	window   []*campaign.Campaign
	err      error
}

func (f *fakeCampaigns) CloseExpired(context.Context, time.Time) ([]string, error) {
	return f.closed, f.err
}

func (f *fakeCampaigns) AdvanceSchedule(context.Context, time.Time) (int, error) {
	return f.advanced, nil
}

func (f *fakeCampaigns) ReviewWindow(context.Context, time.Time, time.Duration) ([]*campaign.Campaign, error) {
	return f.window, nil
}

type fakeReviews map[string][]*application.Application

func (f fakeReviews) PendingReminders(_ context.Context, campaignID string) ([]*application.Application, error) {
	return f[campaignID], nil
}

type fakePayments struct{ expired int }

func (f *fakePayments) ExpireOverdue(context.Context, time.Time) (int, error) {
	return f.expired, nil
}

func newTestService(t *testing.T, n notification.Notifier, c *fakeCampaigns, r fakeReviews) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	return &Service{
		db:             db,
		node:           testutil.NewNode(t),
		dedupe:         NewMemoryDeduper(),
		notify:         notification.NewDispatcher(n),
		campaigns:      c,
		reviews:        r,
		payments:       &fakePayments{expired: 2},
		reminderWindow: defaultReminderWindow,
		job:            repository.ProvideStore[Job](db),
	}
}

func TestTickRecordsEveryTask(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, &fakeCampaigns{closed: []string{"c-1"}, advanced: 3}, fakeReviews{})

	require.NoError(t, svc.Tick(ctx, time.Now()))

	jobs, err := svc.RecentJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, jobs, len(taskname.All))
	for _, j := range jobs {
		require.Equal(t, JobSuccess, j.Status)
		require.NotNil(t, j.CompletedAt)
	}

	jobs, err = svc.RecentJobs(ctx, taskname.PaymentExpireOverdue, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(jobs[0].Metadata, &meta))
	require.EqualValues(t, 2, meta["expired"])
}

func TestFailedTaskIsRecorded(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, &fakeCampaigns{err: errors.New("db down")}, fakeReviews{})

	err := svc.Tick(ctx, time.Now())
	require.EqualError(t, err, "db down")

	jobs, err := svc.RecentJobs(ctx, taskname.CampaignCloseExpired, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, JobFailed, jobs[0].Status)
	require.Equal(t, "db down", jobs[0].ErrorMsg)

	jobs, err = svc.RecentJobs(ctx, taskname.CampaignAdvanceSchedule, 0)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, jobs[0].Status)
}

func TestRemindersAreSentOncePerDay(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := notification.NewMockNotifier(ctrl)
	mock.EXPECT().
		Notify(gomock.Any(), "rv-1", notification.KindReviewDeadlineReminder, gomock.Any()).
		Return(nil).
		Times(2)
	mock.EXPECT().
		Notify(gomock.Any(), "rv-2", notification.KindReviewDeadlineReminder, gomock.Any()).
		Return(nil).
		Times(1)

	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)
	campaigns := &fakeCampaigns{window: []*campaign.Campaign{
		{ID: "c-1", Title: "Serum", ReviewDeadlineAt: &deadline},
	}}
	reviews := fakeReviews{"c-1": {
		{ID: "app-1", ReviewerID: "rv-1"},
		{ID: "app-2", ReviewerID: "rv-2"},
	}}
	svc := newTestService(t, mock, campaigns, reviews)

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Run(ctx, taskname.ReviewDeadlineReminder, day))
	require.NoError(t, svc.Run(ctx, taskname.ReviewDeadlineReminder, day.Add(time.Hour)))

	// rv-2 submitted in between; rv-1 is reminded again the next day
	reviews["c-1"] = reviews["c-1"][:1]
	require.NoError(t, svc.Run(ctx, taskname.ReviewDeadlineReminder, day.Add(24*time.Hour)))
}

func TestUnknownTask(t *testing.T) {
	svc := newTestService(t, nil, &fakeCampaigns{}, fakeReviews{})
	require.Error(t, svc.Run(context.Background(), "campaign:unknown", time.Now()))
}

func TestHandleTask(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, &fakeCampaigns{advanced: 1}, fakeReviews{})

	task, err := NewTask(taskname.CampaignAdvanceSchedule, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.HandleTask(ctx, task))

	require.Error(t, svc.HandleTask(ctx, asynq.NewTask(taskname.CampaignAdvanceSchedule, []byte("{"))))

	jobs, err := svc.RecentJobs(ctx, taskname.CampaignAdvanceSchedule, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	types []string
	fail  string
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task.Type() == r.fail {
		return nil, errors.New("redis unavailable")
	}
	r.types = append(r.types, task.Type())
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestEnqueueAll(t *testing.T) {
	enq := &recordingEnqueuer{fail: taskname.PaymentExpireOverdue}
	s := NewScheduler(SchedulerParams{Enqueuer: enq})

	require.Equal(t, len(taskname.All)-1, s.EnqueueAll(context.Background(), time.Now()))
	require.ElementsMatch(t, []string{
		taskname.CampaignCloseExpired,
		taskname.CampaignAdvanceSchedule,
		taskname.ReviewDeadlineReminder,
	}, enq.types)
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper()

	ok, err := d.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = d.Claim(ctx, "short", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = d.Claim(ctx, "short", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
}
