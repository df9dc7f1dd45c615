package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Account, error)
	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error
	UpdateSecret(ctx context.Context, id int64, encryptedSecret string) error
	IncrementPostCount(ctx context.Context, id int64, at time.Time) error
	Remove(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, username, encrypted_secret, status, total_posts, last_post_time, created_at, updated_at`

const uniqueViolation = "23505"

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var lastPost sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.EncryptedSecret, &a.Status, &a.TotalPosts, &lastPost, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastPostTime = nullTimePtr(lastPost)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) (int64, error) {
	query := `
		INSERT INTO accounts (username, encrypted_secret, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, a.Username, a.EncryptedSecret, a.Status).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, models.ErrDuplicateAccount
		}
		slog.Info(err.Error())
		return 0, err
	}

	return a.ID, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

func (r *accountRepository) ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = $1 ORDER BY id`, status)
}

// ListByIDs returns the accounts that exist among ids, in no particular order.
func (r *accountRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, pq.Array(ids))
}

func (r *accountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	query := `
		UPDATE accounts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, query, status, time.Now().UTC(), id)
}

func (r *accountRepository) UpdateSecret(ctx context.Context, id int64, encryptedSecret string) error {
	query := `
		UPDATE accounts
		SET encrypted_secret = $1,
			updated_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, query, encryptedSecret, time.Now().UTC(), id)
}

func (r *accountRepository) IncrementPostCount(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE accounts
		SET total_posts = total_posts + 1,
			last_post_time = $1,
			updated_at = $1
		WHERE id = $2
	`
	return r.exec(ctx, query, at.UTC(), id)
}

func (r *accountRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Remove deletes the account unless a pending or processing job references it.
func (r *accountRepository) Remove(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			slog.Info(err.Error())
			return err
		}

		// Serializes with ClaimForDispatch on the same account.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, advisoryLockAccount, accountLockKey(id)); err != nil {
			slog.Info(err.Error())
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM accounts
			WHERE id = $1
			AND NOT EXISTS (
				SELECT 1 FROM posting_jobs
				WHERE account_id = $1 AND status IN ('pending', 'processing')
			)`, id)
		if err != nil {
			slog.Info(err.Error())
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		if affected == 0 {
			return models.ErrAccountInUse
		}
		return nil
	})
}
