package policy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// failureBackoff spaces out reloads while the provider keeps failing.
const failureBackoff = 5 * time.Second

// Cache holds the last loaded policy for ttl. A failed refresh keeps serving
// the previous value, or the fallback if nothing was ever loaded, and the
// provider is not asked again until failureBackoff has passed. Concurrent
// refreshes share one provider call.
type Cache struct {
	provider Provider
	fallback Config
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
	group    singleflight.Group

	mu       sync.RWMutex
	value    Config
	loadedAt time.Time
	loaded   bool
	retryAt  time.Time
}

func NewCache(provider Provider, fallback Config, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		provider: provider,
		fallback: fallback,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the cached policy, refreshing it first when stale.
func (c *Cache) Get(ctx context.Context) Config {
	c.RefreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return c.fallback
	}
	return c.value
}

func (c *Cache) RefreshIfStale(ctx context.Context) {
	if !c.due() {
		return
	}

	_, _, _ = c.group.Do("policy", func() (any, error) {
		// A caller that lost the race to a finished reload has nothing to do.
		if c.due() {
			c.reload(ctx)
		}
		return nil, nil
	})
}

func (c *Cache) due() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	if c.loaded && now.Sub(c.loadedAt) < c.ttl {
		return false
	}
	return !now.Before(c.retryAt)
}

func (c *Cache) reload(ctx context.Context) {
	cfg, err := c.provider.LoadPolicy(ctx)
	if err != nil {
		c.logger.Warn("scheduling policy refresh failed, serving previous value", zap.Error(err))
		c.mu.Lock()
		c.retryAt = c.now().Add(failureBackoff)
		c.mu.Unlock()
		return
	}
	if cfg.DefaultDurationMinutes < 15 {
		c.logger.Warn("ignoring scheduling policy with default duration under 15 minutes",
			zap.Int("default_duration_minutes", cfg.DefaultDurationMinutes))
		cfg.DefaultDurationMinutes = c.fallback.DefaultDurationMinutes
	}

	c.mu.Lock()
	c.value = cfg
	c.loadedAt = c.now()
	c.loaded = true
	c.retryAt = time.Time{}
	c.mu.Unlock()
}

// Invalidate forces the next Get to reload. The current value keeps being
// served if that reload fails.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.retryAt = time.Time{}
	c.mu.Unlock()
}

// RunRefresher refreshes the cache every interval until ctx is done.
func (c *Cache) RunRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshIfStale(ctx)
		}
	}
}
