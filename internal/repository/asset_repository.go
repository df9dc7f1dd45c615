package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type AssetRepository interface {
	Create(ctx context.Context, a *models.Asset) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Asset, error)
	List(ctx context.Context) ([]*models.Asset, error)
	// TransitionStatus moves the asset to `to` only if its status is one of
	// from. Variants are written only when `to` is processed.
	TransitionStatus(ctx context.Context, id int64, from []models.AssetStatus, to models.AssetStatus, variants map[models.VariantKind]string) (bool, error)
	// FailStale moves assets left in processing since before cutoff to error,
	// so they can be processed again.
	FailStale(ctx context.Context, cutoff, at time.Time) (int64, error)
	Remove(ctx context.Context, id int64) error
}

type assetRepository struct {
	db *sql.DB
}

func NewAssetRepository(db *sql.DB) AssetRepository {
	return &assetRepository{db: db}
}

const assetColumns = `id, original_filename, object_key, file_size, mime_type, caption, hashtags,
	cut_vertical, cut_square, cut_horizontal, processing_status, variants, created_at, updated_at`

func scanAsset(row rowScanner) (*models.Asset, error) {
	var a models.Asset
	var variants []byte
	err := row.Scan(&a.ID, &a.OriginalFilename, &a.ObjectKey, &a.FileSize, &a.MimeType, &a.Caption, &a.Hashtags,
		&a.CutVertical, &a.CutSquare, &a.CutHorizontal, &a.Status, &variants, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &a.Variants); err != nil {
			return nil, fmt.Errorf("decode variants: %w", err)
		}
	}
	if len(a.Variants) == 0 {
		a.Variants = nil
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (r *assetRepository) Create(ctx context.Context, a *models.Asset) (int64, error) {
	query := `
		INSERT INTO assets (original_filename, object_key, file_size, mime_type, caption, hashtags,
			cut_vertical, cut_square, cut_horizontal, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, a.OriginalFilename, a.ObjectKey, a.FileSize, a.MimeType, a.Caption, a.Hashtags,
		a.CutVertical, a.CutSquare, a.CutHorizontal, a.Status).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return a.ID, nil
}

func (r *assetRepository) GetByID(ctx context.Context, id int64) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	a, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *assetRepository) List(ctx context.Context) ([]*models.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return assets, nil
}

func (r *assetRepository) TransitionStatus(ctx context.Context, id int64, from []models.AssetStatus, to models.AssetStatus, variants map[models.VariantKind]string) (bool, error) {
	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	var encoded []byte
	if to == models.AssetStatusProcessed {
		var err error
		if encoded, err = json.Marshal(variants); err != nil {
			return false, fmt.Errorf("encode variants: %w", err)
		}
	}

	query := `
		UPDATE assets
		SET processing_status = $1,
			variants = COALESCE($2::jsonb, variants),
			updated_at = $3
		WHERE id = $4 AND processing_status = ANY($5)
	`
	var variantsArg any
	if encoded != nil {
		variantsArg = string(encoded)
	}

	result, err := r.db.ExecContext(ctx, query, to, variantsArg, time.Now().UTC(), id, pq.Array(fromValues))
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

func (r *assetRepository) FailStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	query := `
		UPDATE assets
		SET processing_status = 'error',
			updated_at = $1
		WHERE processing_status = 'processing'
		AND updated_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, at.UTC(), cutoff.UTC())
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}

// Remove deletes the asset unless a pending or processing job references it.
func (r *assetRepository) Remove(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM assets WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			slog.Info(err.Error())
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM assets
			WHERE id = $1
			AND NOT EXISTS (
				SELECT 1 FROM posting_jobs
				WHERE asset_id = $1 AND status IN ('pending', 'processing')
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
			return models.ErrAssetInUse
		}
		return nil
	})
}
