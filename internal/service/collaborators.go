package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Processor turns an uploaded asset into delivery variants, keyed by kind.
type Processor interface {
	ProcessAsset(ctx context.Context, asset *models.Asset) (map[models.VariantKind]string, error)
}

// Publisher delivers a variant through an account and checks account health.
type Publisher interface {
	PublishVariant(ctx context.Context, artifactRef, caption string, creds models.Credentials) error
	ProbeAccount(ctx context.Context, creds models.Credentials) error
}

// PublishError is a publish failure with a reason suitable for the job record.
type PublishError struct {
	Reason string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PassScheduler arranges for a dispatch pass to run at (or shortly after) at.
type PassScheduler interface {
	SchedulePass(ctx context.Context, at time.Time) error
}

// NoopScheduler drops schedule requests; passes then only run from the
// periodic tick or an explicit request.
type NoopScheduler struct{}

func (NoopScheduler) SchedulePass(context.Context, time.Time) error {
	return nil
}
