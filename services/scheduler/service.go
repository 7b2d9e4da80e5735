package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/rediskey"
	"reviewcamp/pkg/repository"
	"reviewcamp/pkg/taskname"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/notification"
	"reviewcamp/services/payment"
	"reviewcamp/services/review"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultInterval       = time.Minute
	defaultReminderWindow = 48 * time.Hour
	reminderTTL           = 24 * time.Hour
)

type campaignScanner interface {
	CloseExpired(ctx context.Context, now time.Time) ([]string, error)
	AdvanceSchedule(ctx context.Context, now time.Time) (int, error)
	ReviewWindow(ctx context.Context, now time.Time, window time.Duration) ([]*campaign.Campaign, error)
}

type reminderSource interface {
	PendingReminders(ctx context.Context, campaignID string) ([]*application.Application, error)
}

type paymentExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	dedupe Deduper
	notify *notification.Dispatcher

	campaigns campaignScanner
	reviews   reminderSource
	payments  paymentExpirer

	reminderWindow time.Duration

	job repository.Repository[Job]
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Dedupe    Deduper
	Dispatch  *notification.Dispatcher
	Campaigns *campaign.Service
	Reviews   *review.Service
	Payments  *payment.Service
	Config    *config.Config `optional:"true"`
}

func NewService(p Params) *Service {
	s := &Service{
		db:        p.DB,
		node:      p.Node,
		dedupe:    p.Dedupe,
		notify:    p.Dispatch,
		campaigns: p.Campaigns,
		reviews:   p.Reviews,
		payments:  p.Payments,

		reminderWindow: defaultReminderWindow,

		job: repository.ProvideStore[Job](p.DB),
	}
	if p.Config != nil && p.Config.Scheduler.ReminderWindow > 0 {
		s.reminderWindow = p.Config.Scheduler.ReminderWindow
	}
	return s
}

// Run executes one periodic task and records it as a Job.
func (s *Service) Run(ctx context.Context, name string, now time.Time) error {
	var fn func(context.Context, time.Time) (map[string]any, error)
	switch name {
	case taskname.CampaignCloseExpired:
		fn = s.closeExpired
	case taskname.CampaignAdvanceSchedule:
		fn = s.advanceSchedule
	case taskname.ReviewDeadlineReminder:
		fn = s.remindReviewers
	case taskname.PaymentExpireOverdue:
		fn = s.expirePayments
	default:
		return fmt.Errorf("unknown task %q", name)
	}
	return s.record(ctx, name, now, fn)
}

// Tick runs every periodic task concurrently. A failing task does not stop
// the others; the first error is returned.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	var g errgroup.Group
	for _, name := range taskname.All {
		g.Go(func() error {
			return s.Run(ctx, name, now)
		})
	}
	return g.Wait()
}

func (s *Service) record(ctx context.Context, name string, now time.Time, fn func(context.Context, time.Time) (map[string]any, error)) error {
	job := &Job{
		ID:        s.node.Generate().String(),
		Task:      name,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	if err := s.job.Create(ctx, job); err != nil {
		return err
	}

	meta, runErr := fn(ctx, now)

	fields := map[string]any{
		"status":       JobSuccess,
		"completed_at": time.Now(),
	}
	if runErr != nil {
		fields["status"] = JobFailed
		fields["error_msg"] = runErr.Error()
		zap.L().Error("scheduled task failed", zap.String("task", name), zap.String("job_id", job.ID), zap.Error(runErr))
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err == nil {
			fields["metadata"] = datatypes.JSON(raw)
		}
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(fields).Error; err != nil {
		zap.L().Warn("failed to finish job record", zap.String("job_id", job.ID), zap.Error(err))
	}

	if runErr == nil {
		zap.L().Info("scheduled task finished",
			zap.String("task", name),
			zap.String("job_id", job.ID),
			zap.Any("result", meta))
	}
	return runErr
}

func (s *Service) closeExpired(ctx context.Context, now time.Time) (map[string]any, error) {
	ids, err := s.campaigns.CloseExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"closed": len(ids), "campaign_ids": ids}, nil
}

func (s *Service) advanceSchedule(ctx context.Context, now time.Time) (map[string]any, error) {
	n, err := s.campaigns.AdvanceSchedule(ctx, now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"advanced": n}, nil
}

// remindReviewers nudges selected reviewers that still owe a review on a
// campaign whose deadline is near. Each application is reminded at most once
// a day across all workers.
func (s *Service) remindReviewers(ctx context.Context, now time.Time) (map[string]any, error) {
	campaigns, err := s.campaigns.ReviewWindow(ctx, now, s.reminderWindow)
	if err != nil {
		return nil, err
	}

	sent, skipped := 0, 0
	day := now.UTC().Format("20060102")
	for _, c := range campaigns {
		apps, err := s.reviews.PendingReminders(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, app := range apps {
			ok, err := s.dedupe.Claim(ctx, rediskey.BuildReviewReminderKey(app.ID, day), reminderTTL)
			if err != nil {
				zap.L().Warn("reminder de-duplication unavailable", zap.String("application_id", app.ID), zap.Error(err))
				continue
			}
			if !ok {
				skipped++
				continue
			}
			s.notify.Send(ctx, app.ReviewerID, notification.KindReviewDeadlineReminder, map[string]any{
				"campaign_id":        c.ID,
				"application_id":     app.ID,
				"title":              c.Title,
				"review_deadline_at": c.ReviewDeadlineAt,
			})
			sent++
		}
	}
	return map[string]any{"campaigns": len(campaigns), "sent": sent, "skipped": skipped}, nil
}

func (s *Service) expirePayments(ctx context.Context, now time.Time) (map[string]any, error) {
	n, err := s.payments.ExpireOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"expired": n}, nil
}

// RecentJobs lists the latest runs, optionally of one task.
func (s *Service) RecentJobs(ctx context.Context, task string, limit int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.job.Find(ctx, &Job{Task: task},
		option.WithSortBy(option.QuerySortBy{SortBy: "started_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}
