package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayWindow(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	now := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)

	start, end := dayWindow(now, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), end)

	start, end = dayWindow(now, brt)
	assert.Equal(t, time.Date(2024, 4, 30, 3, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), end)
}

func TestJobStatsUseReferenceTimezone(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()
	acc := e.account(t, "alice")
	other := e.account(t, "bob")
	e.setStatus(t, other.ID, models.AccountStatusBlocked)

	// t0 is 12:00 UTC; jobs land at 12:00 and 16:00 UTC.
	createJobs(t, e, 240, acc.ID, other.ID)

	e.stats = NewStatsService(e.store.Stats(), e.clock, time.Hour, time.FixedZone("UTC+10", 10*3600))
	st, err := e.stats.JobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalJobs)
	assert.Equal(t, int64(2), st.PendingJobs)
	assert.Equal(t, int64(1), st.UpcomingJobs)
	// In UTC+10 the day ends at 14:00 UTC, so only the first job is today.
	assert.Equal(t, int64(1), st.JobsToday)
}

func TestAccountStats(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()
	a := e.account(t, "a")
	b := e.account(t, "b")
	c := e.account(t, "c")
	e.account(t, "d")
	e.setStatus(t, b.ID, models.AccountStatusInactive)
	e.setStatus(t, c.ID, models.AccountStatusLimited)

	createJobs(t, e, 0, a.ID)
	_, err := e.dispatch.RunPass(ctx)
	require.NoError(t, err)

	st, err := e.stats.AccountStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.TotalAccounts)
	assert.Equal(t, int64(2), st.ActiveAccounts)
	assert.Equal(t, int64(1), st.InactiveAccounts)
	assert.Equal(t, int64(1), st.LimitedAccounts)
	assert.Zero(t, st.BlockedAccounts)
	assert.Equal(t, int64(1), st.PostsToday)
}
