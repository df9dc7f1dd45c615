package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleDispatchPassTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPassPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeDispatchPass, err, asynq.SkipRetry)
	}

	result, err := q.ds.RunPass(ctx)
	if err != nil {
		slog.Error("dispatch pass failed", "scheduled_for", payload.ScheduledFor, "error", err)
		return err
	}

	slog.Debug("dispatch pass task done", "scheduled_for", payload.ScheduledFor, "candidates", result.Candidates)
	return nil
}
