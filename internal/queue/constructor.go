package queue

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/service"
)

type Queue struct {
	ds service.DispatchService
}

func NewQueue(ds service.DispatchService) *Queue {
	return &Queue{ds: ds}
}

const TaskTypeDispatchPass = "dispatch:pass"

type DispatchPassPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}
