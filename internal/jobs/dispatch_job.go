package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/crosspost/internal/service"
)

type staleReaper interface {
	ReapStale(ctx context.Context) (int, error)
}

// DispatchJob runs the periodic dispatch pass and stale reapers from cron.
// Overlapping ticks of the same kind are dropped.
type DispatchJob struct {
	ds      service.DispatchService
	assets  staleReaper
	timeout time.Duration

	passing atomic.Bool
	reaping atomic.Bool
}

// NewDispatchJob wires the cron entry points. assets may be nil.
func NewDispatchJob(ds service.DispatchService, assets staleReaper, timeout time.Duration) *DispatchJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &DispatchJob{ds: ds, assets: assets, timeout: timeout}
}

func (c *DispatchJob) RunPass() {
	if !c.passing.CompareAndSwap(false, true) {
		slog.Debug("previous dispatch tick still running")
		return
	}
	defer c.passing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.ds.RunPass(ctx); err != nil {
		slog.Info("Unable to run dispatch pass", "error", err)
	}
}

func (c *DispatchJob) ReapStale() {
	if !c.reaping.CompareAndSwap(false, true) {
		return
	}
	defer c.reaping.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.ds.ReapStale(ctx); err != nil {
		slog.Info("Unable to reap stale jobs", "error", err)
	}
	if c.assets == nil {
		return
	}
	if _, err := c.assets.ReapStale(ctx); err != nil {
		slog.Info("Unable to reap stale assets", "error", err)
	}
}
