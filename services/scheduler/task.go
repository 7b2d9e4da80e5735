package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"reviewcamp/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewTask builds the queue message for one scan of name.
func NewTask(name string, now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(Payload{Now: now})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, payload), nil
}

// HandleTask is the asynq entry point for every periodic task.
func (s *Service) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid scan payload", zap.String("task", t.Type()), zap.Error(err))
		return err
	}
	if payload.Now.IsZero() {
		payload.Now = time.Now()
	}
	return s.Run(ctx, t.Type(), payload.Now)
}

// RegisterHandlers mounts HandleTask for every periodic task on mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	for _, name := range taskname.All {
		mux.HandleFunc(name, s.HandleTask)
	}
}
