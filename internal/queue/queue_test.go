package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeDispatch struct {
	passes int
	err    error
}

func (f *fakeDispatch) RunPass(context.Context) (*models.PassResult, error) {
	f.passes++
	if f.err != nil {
		return nil, f.err
	}
	return &models.PassResult{}, nil
}

func (f *fakeDispatch) ReapStale(context.Context) (int, error) {
	return 0, nil
}

func TestSchedulePassEnqueuesTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := NewScheduler(enq)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	at := now.Add(10 * time.Minute)
	require.NoError(t, s.SchedulePass(context.Background(), at))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeDispatchPass, enq.tasks[0].Type())

	var payload DispatchPassPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.True(t, payload.ScheduledFor.Equal(at))
}

func TestSchedulePassIgnoresDuplicates(t *testing.T) {
	enq := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	assert.NoError(t, NewScheduler(enq).SchedulePass(context.Background(), time.Now()))
}

func TestHandleDispatchPassTask(t *testing.T) {
	ds := &fakeDispatch{}
	q := NewQueue(ds)

	payload, _ := json.Marshal(DispatchPassPayload{ScheduledFor: time.Now()})
	require.NoError(t, q.HandleDispatchPassTask(context.Background(), asynq.NewTask(TaskTypeDispatchPass, payload)))
	assert.Equal(t, 1, ds.passes)

	ds.err = errors.New("db down")
	assert.Error(t, q.HandleDispatchPassTask(context.Background(), asynq.NewTask(TaskTypeDispatchPass, payload)))

	err := q.HandleDispatchPassTask(context.Background(), asynq.NewTask(TaskTypeDispatchPass, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 2, ds.passes)
}
