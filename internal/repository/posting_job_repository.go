package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type PostingJobRepository interface {
	// CreateBatch inserts all jobs atomically and fills in their ids. It
	// fails with ErrNotFound if any referenced account is gone.
	CreateBatch(ctx context.Context, jobs []*models.PostingJob) error
	GetByID(ctx context.Context, id int64) (*models.PostingJob, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.PostingJob, int64, error)
	// ListDue returns pending jobs with scheduled_time <= now, earliest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error)
	ListPending(ctx context.Context, limit int) ([]*models.PostingJob, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int64, error)
	// Transition applies t if the stored status still equals t.From.
	Transition(ctx context.Context, t models.JobTransition) (bool, error)
	// ClaimForDispatch moves a pending job to processing unless its account
	// is no longer active or already has a processing job.
	ClaimForDispatch(ctx context.Context, id, accountID int64, at time.Time) (bool, error)
	// Reschedule puts a terminal, retryable job back to pending. It returns
	// nil when the job no longer qualifies.
	Reschedule(ctx context.Context, id int64, scheduledAt, at time.Time) (*models.PostingJob, error)
	// FailStale fails up to limit jobs stuck in processing since before cutoff.
	FailStale(ctx context.Context, cutoff time.Time, reason string, at time.Time, limit int) ([]*models.PostingJob, error)
}

type postingJobRepository struct {
	db *sql.DB
}

func NewPostingJobRepository(db *sql.DB) PostingJobRepository {
	return &postingJobRepository{db: db}
}

// Advisory lock namespace for per-account dispatch serialization.
const advisoryLockAccount = 4100

func accountLockKey(id int64) int32 {
	return int32(id % (1<<31 - 1))
}

const jobColumns = `id, asset_id, account_id, variant, artifact_ref, caption, status, scheduled_time,
	retry_count, max_retries, error_message, started_at, completed_at, created_at, updated_at`

func scanJob(row rowScanner) (*models.PostingJob, error) {
	var j models.PostingJob
	var errMsg sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.AssetID, &j.AccountID, &j.Variant, &j.ArtifactRef, &j.Caption, &j.Status, &j.ScheduledTime,
		&j.RetryCount, &j.MaxRetries, &errMsg, &started, &completed, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.ErrorMessage = errMsg.String
	j.StartedAt = nullTimePtr(started)
	j.CompletedAt = nullTimePtr(completed)
	j.ScheduledTime = j.ScheduledTime.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func (r *postingJobRepository) CreateBatch(ctx context.Context, jobs []*models.PostingJob) error {
	query := `
		INSERT INTO posting_jobs (asset_id, account_id, variant, artifact_ref, caption, status, scheduled_time,
			retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		// Same lock as accountRepository.Remove, so a delete either sees the
		// new jobs or runs first and makes the existence check below fail.
		ids := batchAccountIDs(jobs)
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, advisoryLockAccount, accountLockKey(id)); err != nil {
				slog.Info(err.Error())
				return err
			}
		}

		var found int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ANY($1)`, pq.Array(ids)).Scan(&found)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		if found != len(ids) {
			return fmt.Errorf("account: %w", models.ErrNotFound)
		}

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		defer stmt.Close()

		for _, j := range jobs {
			err := stmt.QueryRowContext(ctx, j.AssetID, j.AccountID, j.Variant, j.ArtifactRef, j.Caption, j.Status,
				j.ScheduledTime.UTC(), j.RetryCount, j.MaxRetries).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
			if err != nil {
				slog.Info(err.Error())
				return err
			}
		}
		return nil
	})
}

// batchAccountIDs returns the distinct account ids of jobs in ascending
// order, the order advisory locks are taken in.
func batchAccountIDs(jobs []*models.PostingJob) []int64 {
	seen := make(map[int64]struct{}, len(jobs))
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		if _, ok := seen[j.AccountID]; ok {
			continue
		}
		seen[j.AccountID] = struct{}{}
		ids = append(ids, j.AccountID)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

func (r *postingJobRepository) GetByID(ctx context.Context, id int64) (*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs WHERE id = $1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return j, nil
}

func (r *postingJobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.PostingJob, int64, error) {
	filter = filter.Normalize()

	var total int64
	var jobs []*models.PostingJob
	var err error
	if filter.Status != "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posting_jobs WHERE status = $1`, filter.Status).Scan(&total)
		if err == nil {
			jobs, err = r.list(ctx, `SELECT `+jobColumns+` FROM posting_jobs WHERE status = $1
				ORDER BY scheduled_time ASC, id ASC LIMIT $2 OFFSET $3`, filter.Status, filter.PerPage, filter.Offset())
		}
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posting_jobs`).Scan(&total)
		if err == nil {
			jobs, err = r.list(ctx, `SELECT `+jobColumns+` FROM posting_jobs
				ORDER BY scheduled_time ASC, id ASC LIMIT $1 OFFSET $2`, filter.PerPage, filter.Offset())
		}
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *postingJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM posting_jobs
		WHERE status = 'pending' AND scheduled_time <= $1
		ORDER BY scheduled_time ASC, id ASC
		LIMIT $2`, now.UTC(), limit)
}

func (r *postingJobRepository) ListPending(ctx context.Context, limit int) ([]*models.PostingJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM posting_jobs
		WHERE status = 'pending'
		ORDER BY scheduled_time ASC, id ASC
		LIMIT $1`, limit)
}

func (r *postingJobRepository) list(ctx context.Context, query string, args ...any) ([]*models.PostingJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.PostingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return jobs, nil
}

func (r *postingJobRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posting_jobs WHERE status = $1`, status).Scan(&n)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

func (r *postingJobRepository) Transition(ctx context.Context, t models.JobTransition) (bool, error) {
	at := t.At.UTC()

	var startedAt, completedAt any
	switch {
	case t.To == models.JobStatusProcessing:
		startedAt = at
	case t.To.Terminal():
		completedAt = at
	}

	var errMsg any
	if t.ErrorMessage != "" {
		errMsg = t.ErrorMessage
	}

	query := `
		UPDATE posting_jobs
		SET status = $1,
			error_message = COALESCE($2, error_message),
			started_at = COALESCE($3, started_at),
			completed_at = COALESCE($4, completed_at),
			updated_at = $5
		WHERE id = $6 AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query, t.To, errMsg, startedAt, completedAt, at, t.ID, t.From)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postingJobRepository) ClaimForDispatch(ctx context.Context, id, accountID int64, at time.Time) (bool, error) {
	var claimed bool
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, advisoryLockAccount, accountLockKey(accountID)); err != nil {
			slog.Info(err.Error())
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE posting_jobs
			SET status = 'processing',
				started_at = $1,
				updated_at = $1
			WHERE id = $2
			AND status = 'pending'
			AND scheduled_time <= $1
			AND EXISTS (
				SELECT 1 FROM accounts
				WHERE id = $3 AND status = 'active'
			)
			AND NOT EXISTS (
				SELECT 1 FROM posting_jobs
				WHERE account_id = $3 AND status = 'processing'
			)`, at.UTC(), id, accountID)
		if err != nil {
			slog.Info(err.Error())
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		claimed = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (r *postingJobRepository) Reschedule(ctx context.Context, id int64, scheduledAt, at time.Time) (*models.PostingJob, error) {
	query := `
		UPDATE posting_jobs
		SET status = 'pending',
			error_message = NULL,
			started_at = NULL,
			completed_at = NULL,
			scheduled_time = $1,
			retry_count = retry_count + 1,
			updated_at = $2
		WHERE id = $3
		AND status IN ('failed', 'completed')
		AND retry_count < max_retries
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRowContext(ctx, query, scheduledAt.UTC(), at.UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return j, nil
}

func (r *postingJobRepository) FailStale(ctx context.Context, cutoff time.Time, reason string, at time.Time, limit int) ([]*models.PostingJob, error) {
	return r.list(ctx, `
		UPDATE posting_jobs
		SET status = 'failed',
			error_message = $1,
			completed_at = $2,
			updated_at = $2
		WHERE id IN (
			SELECT id FROM posting_jobs
			WHERE status = 'processing' AND started_at < $3
			ORDER BY started_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'processing'
		RETURNING `+jobColumns, reason, at.UTC(), cutoff.UTC(), limit)
}
