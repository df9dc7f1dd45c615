package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "")
	t.Setenv("STATS_TIMEZONE", "")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.Dispatch.BatchSize)
	assert.Equal(t, 1, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.RetryDelay)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.StaleAfter)
	assert.Equal(t, 30*time.Minute, cfg.Dispatch.AssetStaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Stats.Horizon)
	assert.Equal(t, time.UTC, cfg.Stats.Location())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DISPATCH_WORKERS", "4")
	t.Setenv("RETRY_DELAY", "90s")
	t.Setenv("DISPATCH_BATCH_SIZE", "not-a-number")
	t.Setenv("STATS_TIMEZONE", "Asia/Tokyo")

	cfg := LoadConfig()

	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 90*time.Second, cfg.Dispatch.RetryDelay)
	assert.Equal(t, 5, cfg.Dispatch.BatchSize)
	assert.Equal(t, "Asia/Tokyo", cfg.Stats.Location().String())
}
