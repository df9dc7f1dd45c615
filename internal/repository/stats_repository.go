package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

// StatsRepository reads counters from a single snapshot of the store.
type StatsRepository interface {
	JobStats(ctx context.Context, q models.JobStatsQuery) (*models.JobStats, error)
	AccountStats(ctx context.Context, q models.AccountStatsQuery) (*models.AccountStats, error)
}

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) StatsRepository {
	return &statsRepository{db: db}
}

var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

func (r *statsRepository) JobStats(ctx context.Context, q models.JobStatsQuery) (*models.JobStats, error) {
	var s models.JobStats
	err := withTx(ctx, r.db, snapshotTx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'pending'),
				COUNT(*) FILTER (WHERE status = 'processing'),
				COUNT(*) FILTER (WHERE status = 'completed'),
				COUNT(*) FILTER (WHERE status = 'failed'),
				COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_time <= $1),
				COUNT(*) FILTER (WHERE scheduled_time >= $2 AND scheduled_time < $3)
			FROM posting_jobs`,
			q.Now.Add(q.Horizon).UTC(), q.DayStart.UTC(), q.DayEnd.UTC(),
		).Scan(&s.TotalJobs, &s.PendingJobs, &s.ProcessingJobs, &s.CompletedJobs, &s.FailedJobs, &s.UpcomingJobs, &s.JobsToday)
		if err != nil {
			slog.Info(err.Error())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *statsRepository) AccountStats(ctx context.Context, q models.AccountStatsQuery) (*models.AccountStats, error) {
	var s models.AccountStats
	err := withTx(ctx, r.db, snapshotTx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'active'),
				COUNT(*) FILTER (WHERE status = 'inactive'),
				COUNT(*) FILTER (WHERE status = 'blocked'),
				COUNT(*) FILTER (WHERE status = 'limited')
			FROM accounts`,
		).Scan(&s.TotalAccounts, &s.ActiveAccounts, &s.InactiveAccounts, &s.BlockedAccounts, &s.LimitedAccounts)
		if err != nil {
			slog.Info(err.Error())
			return err
		}

		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM posting_jobs
			WHERE status = 'completed' AND completed_at >= $1 AND completed_at < $2`,
			q.DayStart.UTC(), q.DayEnd.UTC(),
		).Scan(&s.PostsToday)
		if err != nil {
			slog.Info(err.Error())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
