package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL and resets the schema. Tests are
// skipped when it is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE job_attempts, posting_jobs, assets, accounts RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func seed(t *testing.T, db *sql.DB, accounts int) (int64, []int64) {
	t.Helper()
	ctx := context.Background()

	asset := &models.Asset{OriginalFilename: "clip.mp4", ObjectKey: "sources/clip.mp4", Status: models.AssetStatusUploaded}
	_, err := NewAssetRepository(db).Create(ctx, asset)
	require.NoError(t, err)

	var ids []int64
	ar := NewAccountRepository(db)
	for i := 0; i < accounts; i++ {
		a := &models.Account{Username: "user" + string(rune('a'+i)), EncryptedSecret: "x", Status: models.AccountStatusActive}
		id, err := ar.Create(ctx, a)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return asset.ID, ids
}

func pendingJob(assetID, accountID int64, at time.Time) *models.PostingJob {
	return &models.PostingJob{
		AssetID:       assetID,
		AccountID:     accountID,
		Variant:       models.VariantSquare,
		ArtifactRef:   "variants/square.mp4",
		Status:        models.JobStatusPending,
		ScheduledTime: at,
		MaxRetries:    models.DefaultMaxRetries,
	}
}

func TestPostgresAccountUniqueness(t *testing.T) {
	db := openTestDB(t)
	_, _ = seed(t, db, 1)

	_, err := NewAccountRepository(db).Create(context.Background(), &models.Account{
		Username: "usera", EncryptedSecret: "y", Status: models.AccountStatusActive,
	})
	assert.ErrorIs(t, err, models.ErrDuplicateAccount)
}

func TestPostgresClaimExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	jobs := []*models.PostingJob{pendingJob(assetID, accounts[0], now.Add(-time.Minute))}
	require.NoError(t, jr.CreateBatch(ctx, jobs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := jr.ClaimForDispatch(ctx, jobs[0].ID, accounts[0], now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := jr.GetByID(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestPostgresClaimRespectsBusyAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC()
	jobs := []*models.PostingJob{
		pendingJob(assetID, accounts[0], now.Add(-2*time.Minute)),
		pendingJob(assetID, accounts[0], now.Add(-time.Minute)),
	}
	require.NoError(t, jr.CreateBatch(ctx, jobs))

	ok, err := jr.ClaimForDispatch(ctx, jobs[0].ID, accounts[0], now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = jr.ClaimForDispatch(ctx, jobs[1].ID, accounts[0], now)
	require.NoError(t, err)
	assert.False(t, ok)

	due, err := jr.ListDue(ctx, now, 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, jobs[1].ID, due[0].ID)
}

func TestPostgresTransitionAndReschedule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC()
	jobs := []*models.PostingJob{pendingJob(assetID, accounts[0], now)}
	require.NoError(t, jr.CreateBatch(ctx, jobs))
	id := jobs[0].ID

	ok, err := jr.Transition(ctx, models.JobTransition{ID: id, From: models.JobStatusPending, To: models.JobStatusFailed,
		ErrorMessage: models.ReasonCancelled, At: now})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = jr.Transition(ctx, models.JobTransition{ID: id, From: models.JobStatusPending, To: models.JobStatusFailed, At: now})
	require.NoError(t, err)
	assert.False(t, ok)

	next := now.Add(5 * time.Minute)
	job, err := jr.Reschedule(ctx, id, next, now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Empty(t, job.ErrorMessage)
	assert.Nil(t, job.CompletedAt)
	assert.WithinDuration(t, next, job.ScheduledTime, time.Millisecond)

	job, err = jr.Reschedule(ctx, id, next, now)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPostgresFailStaleAndRemove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 2)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC()
	jobs := []*models.PostingJob{
		pendingJob(assetID, accounts[0], now.Add(-time.Hour)),
		pendingJob(assetID, accounts[1], now.Add(-time.Hour)),
	}
	require.NoError(t, jr.CreateBatch(ctx, jobs))

	ok, err := jr.ClaimForDispatch(ctx, jobs[0].ID, accounts[0], now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, NewAccountRepository(db).Remove(ctx, accounts[0]), models.ErrAccountInUse)
	assert.ErrorIs(t, NewAssetRepository(db).Remove(ctx, assetID), models.ErrAssetInUse)

	failed, err := jr.FailStale(ctx, now.Add(-15*time.Minute), models.ReasonTimedOut, now, 100)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, jobs[0].ID, failed[0].ID)
	assert.Equal(t, models.ReasonTimedOut, failed[0].ErrorMessage)

	assert.NoError(t, NewAccountRepository(db).Remove(ctx, accounts[0]))
	assert.ErrorIs(t, NewAccountRepository(db).Remove(ctx, accounts[0]), models.ErrNotFound)
}

func TestPostgresStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 2)
	jr := NewPostingJobRepository(db)
	require.NoError(t, NewAccountRepository(db).UpdateStatus(ctx, accounts[1], models.AccountStatusBlocked))

	now := time.Now().UTC()
	jobs := []*models.PostingJob{
		pendingJob(assetID, accounts[0], now.Add(time.Hour)),
		pendingJob(assetID, accounts[1], now.Add(48*time.Hour)),
	}
	require.NoError(t, jr.CreateBatch(ctx, jobs))

	sr := NewStatsRepository(db)
	js, err := sr.JobStats(ctx, models.JobStatsQuery{
		Now: now, Horizon: 24 * time.Hour,
		DayStart: now.Add(-time.Hour), DayEnd: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), js.TotalJobs)
	assert.Equal(t, int64(2), js.PendingJobs)
	assert.Equal(t, int64(1), js.UpcomingJobs)
	assert.Equal(t, int64(1), js.JobsToday)

	as, err := sr.AccountStats(ctx, models.AccountStatsQuery{DayStart: now.Add(-time.Hour), DayEnd: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), as.TotalAccounts)
	assert.Equal(t, int64(1), as.ActiveAccounts)
	assert.Equal(t, int64(1), as.BlockedAccounts)
	assert.Zero(t, as.PostsToday)
}

func TestPostgresCreateBatchRequiresAccounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC()
	jobs := []*models.PostingJob{
		pendingJob(assetID, accounts[0], now),
		pendingJob(assetID, accounts[0]+100, now),
	}
	assert.ErrorIs(t, jr.CreateBatch(ctx, jobs), models.ErrNotFound)

	n, err := jr.CountByStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresCreateBatchSerializesWithRemove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)
	ar := NewAccountRepository(db)

	var wg sync.WaitGroup
	var createErr, removeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		createErr = jr.CreateBatch(ctx, []*models.PostingJob{pendingJob(assetID, accounts[0], time.Now().UTC())})
	}()
	go func() {
		defer wg.Done()
		removeErr = ar.Remove(ctx, accounts[0])
	}()
	wg.Wait()

	// Exactly one side wins; never a pending job without its account.
	if createErr == nil {
		assert.ErrorIs(t, removeErr, models.ErrAccountInUse)
	} else {
		assert.ErrorIs(t, createErr, models.ErrNotFound)
		assert.NoError(t, removeErr)
	}
}

func TestPostgresClaimRequiresActiveAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, accounts := seed(t, db, 1)
	jr := NewPostingJobRepository(db)

	now := time.Now().UTC()
	jobs := []*models.PostingJob{pendingJob(assetID, accounts[0], now.Add(-time.Minute))}
	require.NoError(t, jr.CreateBatch(ctx, jobs))
	require.NoError(t, NewAccountRepository(db).UpdateStatus(ctx, accounts[0], models.AccountStatusLimited))

	ok, err := jr.ClaimForDispatch(ctx, jobs[0].ID, accounts[0], now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresAssetFailStale(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assetID, _ := seed(t, db, 0)
	repo := NewAssetRepository(db)

	ok, err := repo.TransitionStatus(ctx, assetID, []models.AssetStatus{models.AssetStatusUploaded}, models.AssetStatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.FailStale(ctx, time.Now().Add(time.Minute), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusError, got.Status)
}
