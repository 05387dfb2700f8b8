package tokens

import (
	"context"
	"time"

	"stickerquote/internal/infra/logging"
)

type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Reloader refreshes a Cache from a Repository. A failed load keeps the
// previous tokens so a database outage does not lock clients out.
type Reloader struct {
	repo     Repository
	cache    *Cache
	interval time.Duration
	onLoad   func(n int)
}

func NewReloader(repo Repository, cache *Cache, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reloader{repo: repo, cache: cache, interval: interval}
}

// OnLoad registers a callback that receives the token count after each successful load.
func (r *Reloader) OnLoad(fn func(n int)) { r.onLoad = fn }

func (r *Reloader) LoadOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(m)
	if r.onLoad != nil {
		r.onLoad(len(m))
	}
	return nil
}

// Start reloads every interval until ctx is canceled.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
