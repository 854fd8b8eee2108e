package dynconfig

import (
	"context"
	"log/slog"
	"time"
)

// StaleFunc is called with the tenants whose properties changed since the
// previous refresh.
type StaleFunc func(ctx context.Context, tenants []string)

// Refresher polls Storage for tenants with recently modified properties.
type Refresher struct {
	storage     Storage
	interval    time.Duration
	onStale     StaleFunc
	now         func() time.Time
	lastRefresh time.Time
}

// NewRefresher creates a refresher. The first poll reports changes made
// after the refresher was created.
func NewRefresher(storage Storage, interval time.Duration, onStale StaleFunc) *Refresher {
	r := &Refresher{
		storage:  storage,
		interval: interval,
		onStale:  onStale,
		now:      time.Now,
	}
	r.lastRefresh = r.now()
	return r
}

// Run polls every interval until ctx is done. Poll failures are logged and
// retried on the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("dynamic config refresh failed", "error", err)
			}
		}
	}
}

// RefreshOnce performs a single poll and returns the stale tenants. The
// refresh watermark only advances when the poll succeeds.
func (r *Refresher) RefreshOnce(ctx context.Context) ([]string, error) {
	started := r.now()
	tenants, err := r.storage.GetTenantsWithStaleConfigProperties(ctx, r.lastRefresh)
	if err != nil {
		return nil, err
	}
	r.lastRefresh = started
	if len(tenants) > 0 && r.onStale != nil {
		r.onStale(ctx, tenants)
	}
	return tenants, nil
}
