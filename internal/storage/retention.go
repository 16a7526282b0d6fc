package storage

import (
	"context"
	"log/slog"
	"time"
)

// RetentionSweeper periodically expires episodic memories past a
// configured retention window, running in the background independent of
// request handling (spec.md §4.4).
type RetentionSweeper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewRetentionSweeper constructs a sweeper that runs every interval,
// expiring episodic memories last accessed more than maxAge ago.
func NewRetentionSweeper(store Store, interval, maxAge time.Duration, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweeper{store: store, interval: interval, maxAge: maxAge, logger: logger, nowFunc: time.Now}
}

// Run blocks until ctx is cancelled, sweeping at each interval tick.
func (r *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := r.nowFunc().Add(-r.maxAge)
			n, err := r.store.ExpireEpisodicMemories(ctx, cutoff)
			if err != nil {
				r.logger.Warn("retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("retention sweep expired episodic memories", "count", n)
			}
		}
	}
}
