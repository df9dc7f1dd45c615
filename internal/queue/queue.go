package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/service"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler turns schedule requests into delayed dispatch:pass tasks.
// Requests for the same instant collapse into one task.
type Scheduler struct {
	client Enqueuer
	now    func() time.Time
}

var _ service.PassScheduler = (*Scheduler)(nil)

func NewScheduler(client Enqueuer) *Scheduler {
	return &Scheduler{client: client, now: time.Now}
}

func (s *Scheduler) SchedulePass(ctx context.Context, at time.Time) error {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	return EnqueuePass(ctx, s.client, DispatchPassPayload{ScheduledFor: at.UTC()}, delay)
}

func EnqueuePass(ctx context.Context, client Enqueuer, payload DispatchPassPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatchPass, taskPayload)

	_, err = client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.Unique(delay+time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Debug("dispatch pass scheduled", "scheduled_for", payload.ScheduledFor, "delay", delay)
	return nil
}
