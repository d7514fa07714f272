// Package reaper purges expired refresh tokens in the background.
// Rotation treats expired records as missing anyway, the reaper only keeps
// the store from growing without bound.
package reaper

import (
	"context"
	"time"

	"github.com/nkiryanov/authgate/internal/logger"
)

const defaultInterval = time.Hour

type refreshRepo interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Reaper struct {
	interval time.Duration
	repo     refreshRepo
	logger   logger.Logger
}

func New(interval time.Duration, repo refreshRepo, l logger.Logger) *Reaper {
	if interval == 0 {
		interval = defaultInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Reaper{
		interval: interval,
		repo:     repo,
		logger:   l,
	}
}

// Run purges expired tokens on every tick until context is cancelled
// Returned channel is closed when the loop has fully stopped
func (r *Reaper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Reaper stopped")
				return
			case <-ticker.C:
				deleted, err := r.repo.DeleteExpired(ctx, time.Now())
				if err != nil {
					r.logger.Warn("Failed to purge expired refresh tokens", "error", err)
					continue
				}
				if deleted > 0 {
					r.logger.Debug("Purged expired refresh tokens", "count", deleted)
				}
			}
		}
	}()

	return stopped
}
