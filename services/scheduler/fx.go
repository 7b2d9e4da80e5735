package scheduler

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module runs scans on a worker. SchedulerModule only enqueues them.
var Module = fx.Module("scheduler.service",
	fx.Provide(
		NewService,
		provideDeduper,
	),
	fx.Invoke(RegisterHandlers),
)

var SchedulerModule = fx.Module("scheduler.loop",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

type deduperParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func provideDeduper(p deduperParams) Deduper {
	if p.Redis == nil {
		zap.L().Warn("redis not configured, reminder de-duplication is per process")
		return NewMemoryDeduper()
	}
	return NewRedisDeduper(p.Redis)
}

func Models() []any {
	return []any{&Job{}}
}
