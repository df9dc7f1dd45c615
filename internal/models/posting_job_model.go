package models

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	DefaultMaxRetries      = 3
	DefaultIntervalMinutes = 5

	ReasonAccountNotActive = "account not active"
	ReasonCancelled        = "cancelled by user"
	ReasonTimedOut         = "publish timed out"
)

type PostingJob struct {
	ID            int64       `db:"id" json:"id"`
	AssetID       int64       `db:"asset_id" json:"asset_id"`
	AccountID     int64       `db:"account_id" json:"account_id"`
	Variant       VariantKind `db:"variant" json:"variant"`
	ArtifactRef   string      `db:"artifact_ref" json:"artifact_ref"`
	Caption       string      `db:"caption" json:"caption"`
	Status        JobStatus   `db:"status" json:"status"`
	ScheduledTime time.Time   `db:"scheduled_time" json:"scheduled_time"`
	RetryCount    int         `db:"retry_count" json:"retry_count"`
	MaxRetries    int         `db:"max_retries" json:"max_retries"`
	ErrorMessage  string      `db:"error_message" json:"error_message,omitempty"`
	StartedAt     *time.Time  `db:"started_at" json:"started_at"`
	CompletedAt   *time.Time  `db:"completed_at" json:"completed_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// CanRetry is true while retry_count is below max_retries.
func (j *PostingJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Due reports whether the job may be picked up at now.
func (j *PostingJob) Due(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledTime.After(now)
}

// JobTransition is a compare-and-set on a job's status. It only applies when
// the stored status equals From.
type JobTransition struct {
	ID           int64
	From         JobStatus
	To           JobStatus
	ErrorMessage string
	At           time.Time
}

// Apply mutates j as the store does for a successful transition.
func (t JobTransition) Apply(j *PostingJob) {
	at := t.At.UTC()
	j.Status = t.To
	if t.ErrorMessage != "" {
		j.ErrorMessage = t.ErrorMessage
	}
	switch {
	case t.To == JobStatusProcessing:
		j.StartedAt = &at
	case t.To.Terminal():
		j.CompletedAt = &at
	}
	j.UpdatedAt = at
}

// RetryPolicy reschedules terminal jobs after a fixed delay.
type RetryPolicy struct {
	Delay time.Duration
}

const DefaultRetryDelay = 5 * time.Minute

// Check returns the reason a retry is refused, or nil.
func (p RetryPolicy) Check(j *PostingJob) error {
	if !j.Status.Terminal() {
		return ErrInvalidState
	}
	if !j.CanRetry() {
		return ErrRetryExhausted
	}
	return nil
}

// NextRun is the time a retried job becomes due.
func (p RetryPolicy) NextRun(now time.Time) time.Time {
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return now.Add(delay).UTC()
}

// Reset applies a retry to j in place.
func (p RetryPolicy) Reset(j *PostingJob, now time.Time) {
	j.Status = JobStatusPending
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ScheduledTime = p.NextRun(now)
	j.RetryCount++
	j.UpdatedAt = now.UTC()
}

const MaxPerPage = 100

type JobFilter struct {
	Status  JobStatus
	Page    int
	PerPage int
}

func (f JobFilter) Normalize() JobFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

func (f JobFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
