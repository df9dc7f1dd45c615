package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const DefaultQueueSize = 10

type JobOptions struct {
	MaxRetries      int
	IntervalMinutes int
	RetryDelay      time.Duration
}

type JobService interface {
	// CreateBatch fans a processed asset out into one pending job per
	// target account, staggered by the interval.
	CreateBatch(ctx context.Context, assetID int64, req *transfer.CreateJobsRequest) ([]*models.PostingJob, error)
	List(ctx context.Context, filter models.JobFilter) (*models.JobPage, error)
	Get(ctx context.Context, id int64) (*models.JobView, error)
	Retry(ctx context.Context, id int64) (*models.PostingJob, error)
	Cancel(ctx context.Context, id int64) (*models.PostingJob, error)
	// Queue lists the next pending jobs with minutes left until each is due.
	Queue(ctx context.Context, limit int) ([]*models.JobView, error)
}

type jobService struct {
	jr        repository.PostingJobRepository
	ar        repository.AccountRepository
	as        repository.AssetRepository
	at        repository.AttemptRepository
	scheduler PassScheduler
	clock     Clock
	opts      JobOptions
	retry     models.RetryPolicy
}

func NewJobService(
	jr repository.PostingJobRepository,
	ar repository.AccountRepository,
	as repository.AssetRepository,
	at repository.AttemptRepository,
	scheduler PassScheduler,
	clock Clock,
	opts JobOptions) JobService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = models.DefaultMaxRetries
	}
	if opts.IntervalMinutes <= 0 {
		opts.IntervalMinutes = models.DefaultIntervalMinutes
	}
	if scheduler == nil {
		scheduler = NoopScheduler{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &jobService{
		jr:        jr,
		ar:        ar,
		as:        as,
		at:        at,
		scheduler: scheduler,
		clock:     clock,
		opts:      opts,
		retry:     models.RetryPolicy{Delay: opts.RetryDelay},
	}
}

func (s *jobService) CreateBatch(ctx context.Context, assetID int64, req *transfer.CreateJobsRequest) ([]*models.PostingJob, error) {
	if req == nil {
		req = &transfer.CreateJobsRequest{}
	}

	interval := s.opts.IntervalMinutes
	if req.IntervalMinutes != nil {
		interval = *req.IntervalMinutes
	}
	if interval < 0 {
		return nil, fmt.Errorf("%w: interval_minutes cannot be negative", models.ErrValidation)
	}

	asset, err := s.as.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %d: %w", assetID, models.ErrNotFound)
	}
	if asset.Status != models.AssetStatusProcessed {
		return nil, fmt.Errorf("asset %d is %s: %w", assetID, asset.Status, models.ErrAssetNotProcessed)
	}

	targets, err := s.targets(ctx, req.AccountIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, models.ErrNoEligibleAccount
	}

	variant, ref, err := models.SelectVariant(asset.Variants)
	if err != nil {
		return nil, fmt.Errorf("asset %d: %w", assetID, err)
	}

	now := s.clock.Now()
	step := time.Duration(interval) * time.Minute
	jobs := make([]*models.PostingJob, 0, len(targets))
	for i, accountID := range targets {
		jobs = append(jobs, &models.PostingJob{
			AssetID:       asset.ID,
			AccountID:     accountID,
			Variant:       variant,
			ArtifactRef:   ref,
			Caption:       asset.Caption,
			Status:        models.JobStatusPending,
			ScheduledTime: now.Add(time.Duration(i) * step).UTC(),
			RetryCount:    0,
			MaxRetries:    s.opts.MaxRetries,
		})
	}

	if err := s.jr.CreateBatch(ctx, jobs); err != nil {
		return nil, fmt.Errorf("create jobs: %w", err)
	}

	slog.Info("jobs created", "asset_id", asset.ID, "count", len(jobs), "variant", variant, "interval_minutes", interval)

	seen := make(map[time.Time]struct{}, len(jobs))
	for _, j := range jobs {
		if _, ok := seen[j.ScheduledTime]; ok {
			continue
		}
		seen[j.ScheduledTime] = struct{}{}
		if err := s.scheduler.SchedulePass(ctx, j.ScheduledTime); err != nil {
			slog.Warn("failed to schedule dispatch pass", "at", j.ScheduledTime, "error", err)
		}
	}

	return jobs, nil
}

// targets resolves explicit ids (first occurrence wins) or, when none are
// given, every active account ordered by id.
func (s *jobService) targets(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		accounts, err := s.ar.ListByStatus(ctx, models.AccountStatusActive)
		if err != nil {
			return nil, err
		}
		out := make([]int64, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, a.ID)
		}
		return out, nil
	}

	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found, err := s.ar.ListByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	exists := make(map[int64]struct{}, len(found))
	for _, a := range found {
		exists[a.ID] = struct{}{}
	}
	for _, id := range unique {
		if _, ok := exists[id]; !ok {
			return nil, fmt.Errorf("account %d: %w", id, models.ErrNotFound)
		}
	}
	return unique, nil
}

func (s *jobService) List(ctx context.Context, filter models.JobFilter) (*models.JobPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, filter.Status)
	}
	filter = filter.Normalize()

	jobs, total, err := s.jr.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	views, err := s.summarize(ctx, jobs)
	if err != nil {
		return nil, err
	}

	pages := int(math.Ceil(float64(total) / float64(filter.PerPage)))
	return &models.JobPage{
		Jobs:    views,
		Page:    filter.Page,
		Pages:   pages,
		PerPage: filter.PerPage,
		Total:   total,
	}, nil
}

// summarize joins each job with its account username/status and asset filename.
func (s *jobService) summarize(ctx context.Context, jobs []*models.PostingJob) ([]*models.JobView, error) {
	accountIDs := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		accountIDs = append(accountIDs, j.AccountID)
	}
	accounts, err := s.ar.ListByIDs(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	byAccount := make(map[int64]*models.Account, len(accounts))
	for _, a := range accounts {
		byAccount[a.ID] = a
	}

	byAsset := make(map[int64]*models.Asset)
	views := make([]*models.JobView, 0, len(jobs))
	for _, j := range jobs {
		view := &models.JobView{PostingJob: j}
		if a, ok := byAccount[j.AccountID]; ok {
			view.AccountUsername = a.Username
			view.AccountStatus = string(a.Status)
		}

		asset, ok := byAsset[j.AssetID]
		if !ok {
			if asset, err = s.as.GetByID(ctx, j.AssetID); err != nil {
				return nil, err
			}
			byAsset[j.AssetID] = asset
		}
		if asset != nil {
			view.AssetFilename = asset.OriginalFilename
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *jobService) Get(ctx context.Context, id int64) (*models.JobView, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	account, err := s.ar.GetByID(ctx, job.AccountID)
	if err != nil {
		return nil, err
	}
	asset, err := s.as.GetByID(ctx, job.AssetID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.at.ListByJobID(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	return &models.JobView{
		PostingJob: job,
		Account:    account,
		Asset:      asset,
		Attempts:   attempts,
	}, nil
}

func (s *jobService) get(ctx context.Context, id int64) (*models.PostingJob, error) {
	job, err := s.jr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", id, models.ErrNotFound)
	}
	return job, nil
}

func (s *jobService) Retry(ctx context.Context, id int64) (*models.PostingJob, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.retry.Check(job); err != nil {
		return nil, fmt.Errorf("job %d: %w", id, err)
	}

	now := s.clock.Now()
	updated, err := s.jr.Reschedule(ctx, id, s.retry.NextRun(now), now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Lost a race with another transition; report against the current state.
		current, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.retry.Check(current); err != nil {
			return nil, fmt.Errorf("job %d: %w", id, err)
		}
		return nil, fmt.Errorf("job %d: %w", id, models.ErrInvalidState)
	}

	slog.Info("job rescheduled", "job_id", id, "retry_count", updated.RetryCount, "scheduled_time", updated.ScheduledTime)
	if err := s.scheduler.SchedulePass(ctx, updated.ScheduledTime); err != nil {
		slog.Warn("failed to schedule dispatch pass", "at", updated.ScheduledTime, "error", err)
	}
	return updated, nil
}

func (s *jobService) Cancel(ctx context.Context, id int64) (*models.PostingJob, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, fmt.Errorf("job %d is %s: %w", id, job.Status, models.ErrInvalidState)
	}

	t := models.JobTransition{
		ID:           id,
		From:         models.JobStatusPending,
		To:           models.JobStatusFailed,
		ErrorMessage: models.ReasonCancelled,
		At:           s.clock.Now(),
	}
	ok, err := s.jr.Transition(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, models.ErrInvalidState)
	}

	t.Apply(job)
	slog.Info("job cancelled", "job_id", id)
	return job, nil
}

func (s *jobService) Queue(ctx context.Context, limit int) ([]*models.JobView, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultQueueSize
	}

	jobs, err := s.jr.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	views, err := s.summarize(ctx, jobs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for _, v := range views {
		remaining := int(v.ScheduledTime.Sub(now) / time.Minute)
		if remaining < 0 {
			remaining = 0
		}
		v.TimeRemainingMinutes = &remaining
	}
	return views, nil
}
