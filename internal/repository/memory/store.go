// Package memory is an in-process implementation of the repository
// interfaces. All record sets share one lock, so every read sees a single
// consistent snapshot and every status change is a compare-and-set.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[int64]*models.Account
	assets   map[int64]*models.Asset
	jobs     map[int64]*models.PostingJob
	attempts []*models.Attempt

	nextAccountID int64
	nextAssetID   int64
	nextJobID     int64
	nextAttemptID int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]*models.Account),
		assets:   make(map[int64]*models.Asset),
		jobs:     make(map[int64]*models.PostingJob),
		now:      time.Now,
	}
}

// SetNow overrides the clock used for created_at/updated_at stamps.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Accounts() repository.AccountRepository { return (*accountStore)(s) }
func (s *Store) Assets() repository.AssetRepository { return (*assetStore)(s) }
func (s *Store) Jobs() repository.PostingJobRepository { return (*jobStore)(s) }
func (s *Store) Attempts() repository.AttemptRepository { return (*attemptStore)(s) }
func (s *Store) Stats() repository.StatsRepository { return (*statsStore)(s) }

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	c.LastPostTime = copyTime(a.LastPostTime)
	return &c
}

func copyAsset(a *models.Asset) *models.Asset {
	c := *a
	if a.Variants != nil {
		c.Variants = make(map[models.VariantKind]string, len(a.Variants))
		for k, v := range a.Variants {
			c.Variants[k] = v
		}
	}
	return &c
}

func copyJob(j *models.PostingJob) *models.PostingJob {
	c := *j
	c.StartedAt = copyTime(j.StartedAt)
	c.CompletedAt = copyTime(j.CompletedAt)
	return &c
}

// hasActiveJob reports whether match holds for any pending or processing job.
func (s *Store) hasActiveJob(match func(j *models.PostingJob) bool) bool {
	for _, j := range s.jobs {
		if (j.Status == models.JobStatusPending || j.Status == models.JobStatusProcessing) && match(j) {
			return true
		}
	}
	return false
}

func (s *Store) sortedJobs(keep func(j *models.PostingJob) bool) []*models.PostingJob {
	var out []*models.PostingJob
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].ScheduledTime.Equal(out[b].ScheduledTime) {
			return out[a].ScheduledTime.Before(out[b].ScheduledTime)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

type accountStore Store

func (r *accountStore) Create(_ context.Context, a *models.Account) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return 0, models.ErrDuplicateAccount
		}
	}

	s.nextAccountID++
	now := s.stamp()
	a.ID = s.nextAccountID
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = copyAccount(a)
	return a.ID, nil
}

func (r *accountStore) GetByID(_ context.Context, id int64) (*models.Account, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return copyAccount(a), nil
}

func (r *accountStore) List(_ context.Context) ([]*models.Account, error) {
	return r.filter(func(*models.Account) bool { return true }), nil
}

func (r *accountStore) ListByStatus(_ context.Context, status models.AccountStatus) ([]*models.Account, error) {
	return r.filter(func(a *models.Account) bool { return a.Status == status }), nil
}

func (r *accountStore) ListByIDs(_ context.Context, ids []int64) ([]*models.Account, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.filter(func(a *models.Account) bool {
		_, ok := want[a.ID]
		return ok
	}), nil
}

func (r *accountStore) filter(keep func(*models.Account) bool) []*models.Account {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Account
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *accountStore) update(id int64, fn func(a *models.Account, now time.Time)) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	now := s.stamp()
	fn(a, now)
	a.UpdatedAt = now
	return nil
}

func (r *accountStore) UpdateStatus(_ context.Context, id int64, status models.AccountStatus) error {
	return r.update(id, func(a *models.Account, _ time.Time) { a.Status = status })
}

func (r *accountStore) UpdateSecret(_ context.Context, id int64, encryptedSecret string) error {
	return r.update(id, func(a *models.Account, _ time.Time) { a.EncryptedSecret = encryptedSecret })
}

func (r *accountStore) IncrementPostCount(_ context.Context, id int64, at time.Time) error {
	return r.update(id, func(a *models.Account, _ time.Time) {
		t := at.UTC()
		a.TotalPosts++
		a.LastPostTime = &t
	})
}

func (r *accountStore) Remove(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return models.ErrNotFound
	}
	if s.hasActiveJob(func(j *models.PostingJob) bool { return j.AccountID == id }) {
		return models.ErrAccountInUse
	}
	delete(s.accounts, id)
	return nil
}

type assetStore Store

func (r *assetStore) Create(_ context.Context, a *models.Asset) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAssetID++
	now := s.stamp()
	a.ID = s.nextAssetID
	a.CreatedAt, a.UpdatedAt = now, now
	s.assets[a.ID] = copyAsset(a)
	return a.ID, nil
}

func (r *assetStore) GetByID(_ context.Context, id int64) (*models.Asset, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	return copyAsset(a), nil
}

func (r *assetStore) List(_ context.Context) ([]*models.Asset, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, copyAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *assetStore) TransitionStatus(_ context.Context, id int64, from []models.AssetStatus, to models.AssetStatus, variants map[models.VariantKind]string) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if a.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	a.Status = to
	if to == models.AssetStatusProcessed {
		a.Variants = make(map[models.VariantKind]string, len(variants))
		for k, v := range variants {
			a.Variants[k] = v
		}
	}
	a.UpdatedAt = s.stamp()
	return true, nil
}

func (r *assetStore) FailStale(_ context.Context, cutoff, at time.Time) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.assets {
		if a.Status == models.AssetStatusProcessing && a.UpdatedAt.Before(cutoff) {
			a.Status = models.AssetStatusError
			a.UpdatedAt = at.UTC()
			n++
		}
	}
	return n, nil
}

func (r *assetStore) Remove(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return models.ErrNotFound
	}
	if s.hasActiveJob(func(j *models.PostingJob) bool { return j.AssetID == id }) {
		return models.ErrAssetInUse
	}
	delete(s.assets, id)
	return nil
}

type jobStore Store

func (r *jobStore) CreateBatch(_ context.Context, jobs []*models.PostingJob) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range jobs {
		if _, ok := s.accounts[j.AccountID]; !ok {
			return fmt.Errorf("account %d: %w", j.AccountID, models.ErrNotFound)
		}
	}

	now := s.stamp()
	for _, j := range jobs {
		s.nextJobID++
		j.ID = s.nextJobID
		j.ScheduledTime = j.ScheduledTime.UTC()
		j.CreatedAt, j.UpdatedAt = now, now
		s.jobs[j.ID] = copyJob(j)
	}
	return nil
}

func (r *jobStore) GetByID(_ context.Context, id int64) (*models.PostingJob, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(j), nil
}

func (r *jobStore) List(_ context.Context, filter models.JobFilter) ([]*models.PostingJob, int64, error) {
	filter = filter.Normalize()

	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedJobs(func(j *models.PostingJob) bool {
		return filter.Status == "" || j.Status == filter.Status
	})
	total := int64(len(all))

	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}

	out := make([]*models.PostingJob, 0, end-start)
	for _, j := range all[start:end] {
		out = append(out, copyJob(j))
	}
	return out, total, nil
}

func (r *jobStore) ListDue(_ context.Context, now time.Time, limit int) ([]*models.PostingJob, error) {
	return r.head(limit, func(j *models.PostingJob) bool { return j.Due(now) }), nil
}

func (r *jobStore) ListPending(_ context.Context, limit int) ([]*models.PostingJob, error) {
	return r.head(limit, func(j *models.PostingJob) bool { return j.Status == models.JobStatusPending }), nil
}

func (r *jobStore) head(limit int, keep func(j *models.PostingJob) bool) []*models.PostingJob {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedJobs(keep)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*models.PostingJob, len(all))
	for i, j := range all {
		out[i] = copyJob(j)
	}
	return out
}

func (r *jobStore) CountByStatus(_ context.Context, status models.JobStatus) (int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *jobStore) Transition(_ context.Context, t models.JobTransition) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[t.ID]
	if !ok || j.Status != t.From {
		return false, nil
	}
	t.Apply(j)
	return true, nil
}

func (r *jobStore) ClaimForDispatch(_ context.Context, id, accountID int64, at time.Time) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !j.Due(at) {
		return false, nil
	}
	if !s.accounts[accountID].Eligible() {
		return false, nil
	}
	for _, other := range s.jobs {
		if other.AccountID == accountID && other.Status == models.JobStatusProcessing {
			return false, nil
		}
	}
	models.JobTransition{ID: id, From: models.JobStatusPending, To: models.JobStatusProcessing, At: at}.Apply(j)
	return true, nil
}

func (r *jobStore) Reschedule(_ context.Context, id int64, scheduledAt, at time.Time) (*models.PostingJob, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !j.Status.Terminal() || !j.CanRetry() {
		return nil, nil
	}
	j.Status = models.JobStatusPending
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ScheduledTime = scheduledAt.UTC()
	j.RetryCount++
	j.UpdatedAt = at.UTC()
	return copyJob(j), nil
}

func (r *jobStore) FailStale(_ context.Context, cutoff time.Time, reason string, at time.Time, limit int) ([]*models.PostingJob, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*models.PostingJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].StartedAt.Before(*stale[b].StartedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	out := make([]*models.PostingJob, len(stale))
	for i, j := range stale {
		models.JobTransition{ID: j.ID, From: models.JobStatusProcessing, To: models.JobStatusFailed, ErrorMessage: reason, At: at}.Apply(j)
		out[i] = copyJob(j)
	}
	return out, nil
}

type attemptStore Store

func (r *attemptStore) Create(_ context.Context, a *models.Attempt) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAttemptID++
	a.ID = s.nextAttemptID
	c := *a
	s.attempts = append(s.attempts, &c)
	return a.ID, nil
}

func (r *attemptStore) ListByJobID(_ context.Context, jobID int64) ([]*models.Attempt, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Attempt
	for _, a := range s.attempts {
		if a.JobID == jobID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

type statsStore Store

func (r *statsStore) JobStats(_ context.Context, q models.JobStatsQuery) (*models.JobStats, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	horizon := q.Now.Add(q.Horizon)
	var st models.JobStats
	for _, j := range s.jobs {
		st.TotalJobs++
		switch j.Status {
		case models.JobStatusPending:
			st.PendingJobs++
			if !j.ScheduledTime.After(horizon) {
				st.UpcomingJobs++
			}
		case models.JobStatusProcessing:
			st.ProcessingJobs++
		case models.JobStatusCompleted:
			st.CompletedJobs++
		case models.JobStatusFailed:
			st.FailedJobs++
		}
		if !j.ScheduledTime.Before(q.DayStart) && j.ScheduledTime.Before(q.DayEnd) {
			st.JobsToday++
		}
	}
	return &st, nil
}

func (r *statsStore) AccountStats(_ context.Context, q models.AccountStatsQuery) (*models.AccountStats, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.AccountStats
	for _, a := range s.accounts {
		st.TotalAccounts++
		switch a.Status {
		case models.AccountStatusActive:
			st.ActiveAccounts++
		case models.AccountStatusInactive:
			st.InactiveAccounts++
		case models.AccountStatusBlocked:
			st.BlockedAccounts++
		case models.AccountStatusLimited:
			st.LimitedAccounts++
		}
	}
	for _, j := range s.jobs {
		if j.Status == models.JobStatusCompleted && j.CompletedAt != nil &&
			!j.CompletedAt.Before(q.DayStart) && j.CompletedAt.Before(q.DayEnd) {
			st.PostsToday++
		}
	}
	return &st, nil
}
