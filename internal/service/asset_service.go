package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const MaxUploadSize = 100 * 1024 * 1024

var allowedVideoTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "avi": {}, "mkv": {}, "webm": {},
}

// ObjectStore holds asset sources and produced variants.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

type AssetService interface {
	Upload(ctx context.Context, filename string, data []byte, in transfer.AssetUpload) (*models.Asset, error)
	List(ctx context.Context) ([]*models.Asset, error)
	Get(ctx context.Context, id int64) (*models.Asset, error)
	// Process runs the processor on an uploaded (or previously failed) asset.
	Process(ctx context.Context, id int64) (*models.Asset, error)
	Delete(ctx context.Context, id int64) error
	// ReapStale returns assets stuck in processing to error.
	ReapStale(ctx context.Context) (int, error)
}

const DefaultAssetStaleAfter = 30 * time.Minute

type assetService struct {
	ar         repository.AssetRepository
	store      ObjectStore
	processor  Processor
	clock      Clock
	staleAfter time.Duration
}

func NewAssetService(ar repository.AssetRepository, store ObjectStore, processor Processor, clock Clock, staleAfter time.Duration) AssetService {
	if clock == nil {
		clock = RealClock{}
	}
	if staleAfter <= 0 {
		staleAfter = DefaultAssetStaleAfter
	}
	return &assetService{
		ar:         ar,
		store:      store,
		processor:  processor,
		clock:      clock,
		staleAfter: staleAfter,
	}
}

func (s *assetService) Upload(ctx context.Context, filename string, data []byte, in transfer.AssetUpload) (*models.Asset, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: no file selected", models.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", models.ErrValidation)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds 100MB", models.ErrValidation)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, fmt.Errorf("%w: unsupported file type", models.ErrValidation)
	}
	if _, ok := allowedVideoTypes[kind.Extension]; !ok {
		return nil, fmt.Errorf("%w: file type %s is not allowed", models.ErrValidation, kind.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := path.Join("sources", id+"."+kind.Extension)

	if err := s.store.Upload(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("upload source: %w", err)
	}

	asset := &models.Asset{
		OriginalFilename: filename,
		ObjectKey:        key,
		FileSize:         int64(len(data)),
		MimeType:         kind.MIME.Value,
		Caption:          strings.TrimSpace(in.Caption),
		Hashtags:         strings.TrimSpace(in.Hashtags),
		CutVertical:      in.CutVertical,
		CutSquare:        in.CutSquare,
		CutHorizontal:    in.CutHorizontal,
		Status:           models.AssetStatusUploaded,
	}
	if _, err := s.ar.Create(ctx, asset); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Warn("failed to remove orphaned source", "key", key, "error", delErr)
		}
		return nil, err
	}

	slog.Info("asset uploaded", "asset_id", asset.ID, "key", key, "size", asset.FileSize)
	return asset, nil
}

func (s *assetService) List(ctx context.Context) ([]*models.Asset, error) {
	return s.ar.List(ctx)
}

func (s *assetService) Get(ctx context.Context, id int64) (*models.Asset, error) {
	asset, err := s.ar.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	return asset, nil
}

func (s *assetService) Process(ctx context.Context, id int64) (*models.Asset, error) {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.ar.TransitionStatus(ctx, id,
		[]models.AssetStatus{models.AssetStatusUploaded, models.AssetStatusError},
		models.AssetStatusProcessing, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("asset %d is %s: %w", id, asset.Status, models.ErrInvalidState)
	}

	variants, procErr := s.processor.ProcessAsset(ctx, asset)
	if procErr != nil {
		slog.Error("asset processing failed", "asset_id", id, "error", procErr)
		if _, err := s.ar.TransitionStatus(ctx, id,
			[]models.AssetStatus{models.AssetStatusProcessing}, models.AssetStatusError, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("process asset %d: %w", id, procErr)
	}

	ok, err = s.ar.TransitionStatus(ctx, id,
		[]models.AssetStatus{models.AssetStatusProcessing}, models.AssetStatusProcessed, variants)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Reaped while the processor was running.
		return nil, fmt.Errorf("asset %d is no longer processing: %w", id, models.ErrInvalidState)
	}

	slog.Info("asset processed", "asset_id", id, "variants", len(variants))
	return s.Get(ctx, id)
}

func (s *assetService) Delete(ctx context.Context, id int64) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.ar.Remove(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
		}
		return err
	}

	keys := []string{asset.ObjectKey}
	for _, ref := range asset.Variants {
		keys = append(keys, ref)
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			slog.Warn("failed to remove asset object", "asset_id", id, "key", key, "error", err)
		}
	}
	return nil
}

func (s *assetService) ReapStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	n, err := s.ar.FailStale(ctx, now.Add(-s.staleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("reap stale assets: %w", err)
	}
	if n > 0 {
		slog.Warn("stale processing assets reset", "count", n, "stale_after", s.staleAfter)
	}
	return int(n), nil
}
