package models

import "time"

type JobStatsQuery struct {
	Now      time.Time
	Horizon  time.Duration
	DayStart time.Time
	DayEnd   time.Time
}

type JobStats struct {
	TotalJobs      int64 `json:"total_jobs"`
	PendingJobs    int64 `json:"pending_jobs"`
	ProcessingJobs int64 `json:"processing_jobs"`
	CompletedJobs  int64 `json:"completed_jobs"`
	FailedJobs     int64 `json:"failed_jobs"`
	UpcomingJobs   int64 `json:"upcoming_jobs"`
	JobsToday      int64 `json:"jobs_today"`
}

type AccountStatsQuery struct {
	DayStart time.Time
	DayEnd   time.Time
}

type AccountStats struct {
	TotalAccounts    int64 `json:"total_accounts"`
	ActiveAccounts   int64 `json:"active_accounts"`
	InactiveAccounts int64 `json:"inactive_accounts"`
	BlockedAccounts  int64 `json:"blocked_accounts"`
	LimitedAccounts  int64 `json:"limited_accounts"`
	PostsToday       int64 `json:"posts_today"`
}

// PassResult summarizes one dispatch pass.
type PassResult struct {
	Candidates int   `json:"candidates"`
	Completed  int   `json:"processed_count"`
	Failed     int   `json:"failed_count"`
	Ineligible int   `json:"ineligible_count"`
	Skipped    int   `json:"skipped_count"`
	Pending    int64 `json:"total_pending"`
}

// JobView is a job joined with the records it references, for read endpoints.
type JobView struct {
	*PostingJob
	AccountUsername      string     `json:"account_username,omitempty"`
	AccountStatus        string     `json:"account_status,omitempty"`
	AssetFilename        string     `json:"video_filename,omitempty"`
	Account              *Account   `json:"account,omitempty"`
	Asset                *Asset     `json:"video,omitempty"`
	Attempts             []*Attempt `json:"attempts,omitempty"`
	TimeRemainingMinutes *int       `json:"time_remaining_minutes,omitempty"`
}

type JobPage struct {
	Jobs    []*JobView `json:"jobs"`
	Page    int        `json:"page"`
	Pages   int        `json:"pages"`
	PerPage int        `json:"per_page"`
	Total   int64      `json:"total"`
}
