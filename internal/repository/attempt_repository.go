package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

type AttemptRepository interface {
	Create(ctx context.Context, a *models.Attempt) (int64, error)
	ListByJobID(ctx context.Context, jobID int64) ([]*models.Attempt, error)
}

type attemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, a *models.Attempt) (int64, error) {
	query := `
		INSERT INTO job_attempts (job_id, account_id, outcome, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query, a.JobID, a.AccountID, a.Outcome, a.ErrorMessage, a.CreatedAt.UTC()).Scan(&a.ID)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return a.ID, nil
}

func (r *attemptRepository) ListByJobID(ctx context.Context, jobID int64) ([]*models.Attempt, error) {
	query := `SELECT id, job_id, account_id, outcome, error_message, created_at FROM job_attempts WHERE job_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := rows.Scan(&a.ID, &a.JobID, &a.AccountID, &a.Outcome, &a.ErrorMessage, &a.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return attempts, nil
}
