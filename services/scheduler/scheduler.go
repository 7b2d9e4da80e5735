package scheduler

import (
	"context"
	"time"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/task"
	"reviewcamp/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

type SchedulerParams struct {
	fx.In

	Enqueuer task.Enqueuer
	Config   *config.Config `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	interval := defaultInterval
	if p.Config != nil && p.Config.Scheduler.Interval > 0 {
		interval = p.Config.Scheduler.Interval
	}
	return &Scheduler{enqueuer: p.Enqueuer, interval: interval}
}

// StartScheduler runs the enqueue loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started deadline scanner", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.EnqueueAll(ctx, now)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// EnqueueAll queues one scan of every periodic task. A scan already queued
// within the interval is not queued again.
func (s *Scheduler) EnqueueAll(ctx context.Context, now time.Time) int {
	queued := 0
	for _, name := range taskname.All {
		t, err := NewTask(name, now)
		if err != nil {
			zap.L().Error("[Scheduler] failed to build task", zap.String("task", name), zap.Error(err))
			continue
		}
		if _, err := s.enqueuer.Enqueue(ctx, t, asynq.Queue("default"), asynq.Unique(s.interval), asynq.MaxRetry(3)); err != nil {
			zap.L().Warn("[Scheduler] failed to enqueue", zap.String("task", name), zap.Error(err))
			continue
		}
		queued++
	}
	return queued
}
