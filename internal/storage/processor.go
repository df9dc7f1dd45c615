package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
)

type Copier interface {
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// CopyProcessor produces one object per requested variant by copying the
// source. Reframing the video is left to whatever consumes the variant keys.
type CopyProcessor struct {
	store Copier
}

func NewCopyProcessor(store Copier) *CopyProcessor {
	return &CopyProcessor{store: store}
}

func (p *CopyProcessor) ProcessAsset(ctx context.Context, asset *models.Asset) (map[models.VariantKind]string, error) {
	ext := path.Ext(asset.ObjectKey)
	base := strings.TrimSuffix(path.Base(asset.ObjectKey), ext)

	variants := make(map[models.VariantKind]string)
	for _, kind := range asset.RequestedVariants() {
		key := path.Join("variants", base, string(kind)+ext)
		if err := p.store.Copy(ctx, asset.ObjectKey, key); err != nil {
			return nil, fmt.Errorf("copy %s variant: %w", kind, err)
		}
		variants[kind] = key
	}
	return variants, nil
}
