package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"golang.org/x/sync/errgroup"
)

type DispatchOptions struct {
	BatchSize      int
	Workers        int
	PublishTimeout time.Duration
	StaleAfter     time.Duration
	ReaperBatch    int
}

func (o DispatchOptions) withDefaults() DispatchOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 15 * time.Minute
	}
	if o.ReaperBatch <= 0 {
		o.ReaperBatch = 100
	}
	return o
}

// CredentialSource resolves decrypted credentials for an account.
type CredentialSource interface {
	Credentials(ctx context.Context, id int64) (models.Credentials, error)
}

type DispatchService interface {
	// RunPass dispatches up to BatchSize due jobs. Individual job failures
	// are recorded on the job; only a failure to list candidates is returned.
	RunPass(ctx context.Context) (*models.PassResult, error)
	// ReapStale fails jobs stuck in processing longer than StaleAfter.
	ReapStale(ctx context.Context) (int, error)
}

type dispatchService struct {
	jr        repository.PostingJobRepository
	ar        repository.AccountRepository
	at        repository.AttemptRepository
	creds     CredentialSource
	publisher Publisher
	clock     Clock
	opts      DispatchOptions
}

func NewDispatchService(
	jr repository.PostingJobRepository,
	ar repository.AccountRepository,
	at repository.AttemptRepository,
	creds CredentialSource,
	publisher Publisher,
	clock Clock,
	opts DispatchOptions) DispatchService {
	if clock == nil {
		clock = RealClock{}
	}
	return &dispatchService{
		jr:        jr,
		ar:        ar,
		at:        at,
		creds:     creds,
		publisher: publisher,
		clock:     clock,
		opts:      opts.withDefaults(),
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeIneligible
)

func (s *dispatchService) RunPass(ctx context.Context) (*models.PassResult, error) {
	candidates, err := s.jr.ListDue(ctx, s.clock.Now(), s.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &models.PassResult{Candidates: len(candidates)}
	var mu sync.Mutex
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeCompleted:
			result.Completed++
		case outcomeFailed:
			result.Failed++
		case outcomeIneligible:
			result.Ineligible++
		default:
			result.Skipped++
		}
	}

	if s.opts.Workers == 1 {
		for _, j := range candidates {
			record(s.dispatch(ctx, j))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.opts.Workers)
		for _, group := range groupByAccount(candidates) {
			group := group
			g.Go(func() error {
				for _, j := range group {
					record(s.dispatch(ctx, j))
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	pending, err := s.jr.CountByStatus(ctx, models.JobStatusPending)
	if err != nil {
		slog.Warn("failed to count pending jobs", "error", err)
	}
	result.Pending = pending

	if result.Candidates > 0 {
		slog.Info("dispatch pass finished",
			"candidates", result.Candidates,
			"completed", result.Completed,
			"failed", result.Failed,
			"ineligible", result.Ineligible,
			"skipped", result.Skipped,
			"pending", result.Pending)
	}
	return result, nil
}

// groupByAccount splits candidates into per-account runs, keeping the
// candidate order inside each run and the order of first appearance across runs.
func groupByAccount(jobs []*models.PostingJob) [][]*models.PostingJob {
	index := make(map[int64]int)
	var groups [][]*models.PostingJob
	for _, j := range jobs {
		i, ok := index[j.AccountID]
		if !ok {
			i = len(groups)
			index[j.AccountID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], j)
	}
	return groups
}

func (s *dispatchService) dispatch(ctx context.Context, j *models.PostingJob) outcome {
	log := slog.With("job_id", j.ID, "account_id", j.AccountID)

	account, err := s.ar.GetByID(ctx, j.AccountID)
	if err != nil {
		log.Warn("failed to load account", "error", err)
		return outcomeSkipped
	}

	if !account.Eligible() {
		ok, err := s.jr.Transition(ctx, models.JobTransition{
			ID:           j.ID,
			From:         models.JobStatusPending,
			To:           models.JobStatusFailed,
			ErrorMessage: models.ReasonAccountNotActive,
			At:           s.clock.Now(),
		})
		if err != nil || !ok {
			return outcomeSkipped
		}
		s.logAttempt(ctx, j, models.AttemptIneligible, models.ReasonAccountNotActive)
		log.Info("job failed, account not active")
		return outcomeIneligible
	}

	claimed, err := s.jr.ClaimForDispatch(ctx, j.ID, j.AccountID, s.clock.Now())
	if err != nil {
		log.Warn("failed to claim job", "error", err)
		return outcomeSkipped
	}
	if !claimed {
		return outcomeSkipped
	}

	pubErr := s.publish(ctx, j)
	if pubErr == nil {
		at := s.clock.Now()
		ok, err := s.jr.Transition(ctx, models.JobTransition{
			ID:   j.ID,
			From: models.JobStatusProcessing,
			To:   models.JobStatusCompleted,
			At:   at,
		})
		if err != nil || !ok {
			log.Warn("publish succeeded but job was no longer processing", "error", err)
			return outcomeSkipped
		}
		if err := s.ar.IncrementPostCount(ctx, j.AccountID, at); err != nil {
			log.Warn("failed to update account counters", "error", err)
		}
		s.logAttempt(ctx, j, models.AttemptCompleted, "")
		log.Info("job completed")
		return outcomeCompleted
	}

	reason := failureReason(pubErr)
	ok, err := s.jr.Transition(ctx, models.JobTransition{
		ID:           j.ID,
		From:         models.JobStatusProcessing,
		To:           models.JobStatusFailed,
		ErrorMessage: reason,
		At:           s.clock.Now(),
	})
	if err != nil || !ok {
		log.Warn("publish failed but job was no longer processing", "reason", reason, "error", err)
		return outcomeSkipped
	}
	s.logAttempt(ctx, j, models.AttemptFailed, reason)
	log.Info("job failed", "reason", reason)
	return outcomeFailed
}

func (s *dispatchService) publish(ctx context.Context, j *models.PostingJob) error {
	creds, err := s.creds.Credentials(ctx, j.AccountID)
	if err != nil {
		return &PublishError{Reason: "credentials unavailable", Err: err}
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	return s.publisher.PublishVariant(pctx, j.ArtifactRef, j.Caption, creds)
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimedOut
	}
	var pe *PublishError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	return err.Error()
}

func (s *dispatchService) logAttempt(ctx context.Context, j *models.PostingJob, o models.AttemptOutcome, msg string) {
	_, err := s.at.Create(ctx, &models.Attempt{
		JobID:        j.ID,
		AccountID:    j.AccountID,
		Outcome:      o,
		ErrorMessage: msg,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		slog.Warn("failed to record attempt", "job_id", j.ID, "outcome", o, "error", err)
	}
}

func (s *dispatchService) ReapStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.opts.StaleAfter)

	total := 0
	for {
		jobs, err := s.jr.FailStale(ctx, cutoff, models.ReasonTimedOut, now, s.opts.ReaperBatch)
		if err != nil {
			return total, err
		}
		for _, j := range jobs {
			s.logAttempt(ctx, j, models.AttemptTimedOut, models.ReasonTimedOut)
		}
		total += len(jobs)
		if len(jobs) < s.opts.ReaperBatch {
			break
		}
	}

	if total > 0 {
		slog.Warn("stale jobs failed", "count", total, "cutoff", cutoff)
	}
	return total, nil
}
