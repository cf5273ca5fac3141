package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper runs the store's eviction sweep on a fixed interval and on demand
// when the store reports it is near capacity.
type Reaper struct {
	store    *Store
	interval time.Duration
	kick     chan struct{}
	logger   *zap.Logger
}

func NewReaper(store *Store, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Kick requests an immediate sweep without waiting for the next tick.
// Safe to call from any goroutine; never blocks.
func (r *Reaper) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run sweeps once at startup and then on every tick or kick until the
// context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.kick:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	removed, err := r.store.Evict(ctx)
	if err != nil {
		r.logger.Error("job sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("job sweep completed", zap.Int("removed", removed))
	}
}
