package models

import "time"

type AssetStatus string

const (
	AssetStatusUploaded   AssetStatus = "uploaded"
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusProcessed  AssetStatus = "processed"
	AssetStatusError      AssetStatus = "error"
)

type VariantKind string

const (
	VariantVertical   VariantKind = "vertical"
	VariantSquare     VariantKind = "square"
	VariantHorizontal VariantKind = "horizontal"
)

// Asset is an uploaded source media item and the delivery variants produced
// from it. Variants is only populated once Status is processed.
type Asset struct {
	ID               int64                  `db:"id" json:"id"`
	OriginalFilename string                 `db:"original_filename" json:"original_filename"`
	ObjectKey        string                 `db:"object_key" json:"object_key"`
	FileSize         int64                  `db:"file_size" json:"file_size"`
	MimeType         string                 `db:"mime_type" json:"mime_type"`
	Caption          string                 `db:"caption" json:"caption"`
	Hashtags         string                 `db:"hashtags" json:"hashtags"`
	CutVertical      bool                   `db:"cut_vertical" json:"cut_vertical"`
	CutSquare        bool                   `db:"cut_square" json:"cut_square"`
	CutHorizontal    bool                   `db:"cut_horizontal" json:"cut_horizontal"`
	Status           AssetStatus            `db:"processing_status" json:"processing_status"`
	Variants         map[VariantKind]string `db:"variants" json:"variants,omitempty"`
	CreatedAt        time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at" json:"updated_at"`
}

// RequestedVariants lists the enabled variant kinds in selection priority order.
func (a *Asset) RequestedVariants() []VariantKind {
	var kinds []VariantKind
	if a.CutVertical {
		kinds = append(kinds, VariantVertical)
	}
	if a.CutSquare {
		kinds = append(kinds, VariantSquare)
	}
	if a.CutHorizontal {
		kinds = append(kinds, VariantHorizontal)
	}
	return kinds
}

var variantPriority = []VariantKind{VariantVertical, VariantSquare, VariantHorizontal}

// SelectVariant picks the variant a new job carries: vertical, then square,
// then horizontal. Unknown kinds are ignored.
func SelectVariant(variants map[VariantKind]string) (VariantKind, string, error) {
	for _, kind := range variantPriority {
		if ref, ok := variants[kind]; ok {
			return kind, ref, nil
		}
	}
	return "", "", ErrNoEligibleVariant
}
