package models

import "time"

type AttemptOutcome string

const (
	AttemptCompleted  AttemptOutcome = "completed"
	AttemptFailed     AttemptOutcome = "failed"
	AttemptIneligible AttemptOutcome = "ineligible"
	AttemptTimedOut   AttemptOutcome = "timed_out"
)

// Attempt records the outcome of one dispatch of a job.
type Attempt struct {
	ID           int64          `db:"id" json:"id"`
	JobID        int64          `db:"job_id" json:"job_id"`
	AccountID    int64          `db:"account_id" json:"account_id"`
	Outcome      AttemptOutcome `db:"outcome" json:"outcome"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
