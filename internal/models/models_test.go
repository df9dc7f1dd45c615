package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name     string
		variants map[VariantKind]string
		want     VariantKind
		wantErr  error
	}{
		{name: "all three", variants: map[VariantKind]string{VariantHorizontal: "h", VariantSquare: "s", VariantVertical: "v"}, want: VariantVertical},
		{name: "square and horizontal", variants: map[VariantKind]string{VariantHorizontal: "h", VariantSquare: "s"}, want: VariantSquare},
		{name: "horizontal only", variants: map[VariantKind]string{VariantHorizontal: "h"}, want: VariantHorizontal},
		{name: "unknown kinds", variants: map[VariantKind]string{"panorama": "p"}, wantErr: ErrNoEligibleVariant},
		{name: "empty", variants: nil, wantErr: ErrNoEligibleVariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ref, err := SelectVariant(tt.variants)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
			assert.Equal(t, tt.variants[tt.want], ref)
		})
	}
}

func TestRequestedVariantsOrder(t *testing.T) {
	a := &Asset{CutHorizontal: true, CutVertical: true}
	assert.Equal(t, []VariantKind{VariantVertical, VariantHorizontal}, a.RequestedVariants())
}

func TestRetryPolicyCheck(t *testing.T) {
	p := RetryPolicy{}
	tests := []struct {
		name    string
		status  JobStatus
		retries int
		wantErr error
	}{
		{name: "failed with budget", status: JobStatusFailed, retries: 2},
		{name: "completed with budget", status: JobStatusCompleted, retries: 0},
		{name: "at limit", status: JobStatusFailed, retries: 3, wantErr: ErrRetryExhausted},
		{name: "pending", status: JobStatusPending, wantErr: ErrInvalidState},
		{name: "processing", status: JobStatusProcessing, wantErr: ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &PostingJob{Status: tt.status, RetryCount: tt.retries, MaxRetries: DefaultMaxRetries}
			err := p.Check(j)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicyReset(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	started := now.Add(-time.Hour)
	j := &PostingJob{
		Status:       JobStatusFailed,
		RetryCount:   1,
		MaxRetries:   3,
		ErrorMessage: "boom",
		StartedAt:    &started,
		CompletedAt:  &started,
	}

	RetryPolicy{}.Reset(j, now)

	assert.Equal(t, JobStatusPending, j.Status)
	assert.Equal(t, 2, j.RetryCount)
	assert.Empty(t, j.ErrorMessage)
	assert.Nil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Equal(t, now.Add(5*time.Minute), j.ScheduledTime)
}

func TestJobTransitionApply(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	j := &PostingJob{Status: JobStatusPending}

	JobTransition{From: JobStatusPending, To: JobStatusProcessing, At: at}.Apply(j)
	require.NotNil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)

	JobTransition{From: JobStatusProcessing, To: JobStatusFailed, ErrorMessage: "nope", At: at.Add(time.Minute)}.Apply(j)
	assert.Equal(t, JobStatusFailed, j.Status)
	assert.Equal(t, "nope", j.ErrorMessage)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, at.Add(time.Minute), *j.CompletedAt)
}

func TestJobFilterNormalize(t *testing.T) {
	f := JobFilter{Page: 0, PerPage: 0}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 20, f.PerPage)
	assert.Equal(t, 0, f.Offset())

	f = JobFilter{Page: 2, PerPage: 200}.Normalize()
	assert.Equal(t, MaxPerPage, f.PerPage)
	assert.Equal(t, 100, f.Offset())

	f = JobFilter{Page: 3, PerPage: 10}.Normalize()
	assert.Equal(t, 20, f.Offset())
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, IsValidation(ErrNoEligibleAccount))
	assert.True(t, IsConflict(ErrRetryExhausted))
	assert.False(t, IsConflict(ErrNotFound))
	assert.False(t, IsValidation(ErrNotFound))
}
