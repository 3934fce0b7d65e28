package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stubProvider struct {
	mu    sync.Mutex
	cfg   Config
	err   error
	calls int
}

func (p *stubProvider) LoadPolicy(ctx context.Context) (Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.cfg, p.err
}

func (p *stubProvider) set(cfg Config, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg, p.err = cfg, err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var fallback = Config{LeadTimeHours: 2, CancellationWindowHours: 24, DefaultDurationMinutes: 30}

func newTestCache(p Provider, ttl time.Duration) (*Cache, *time.Time) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewCache(p, fallback, ttl, zap.NewNop())
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheServesWithinTTL(t *testing.T) {
	p := &stubProvider{cfg: Config{LeadTimeHours: 24, CancellationWindowHours: 12, DefaultDurationMinutes: 45}}
	c, now := newTestCache(p, time.Minute)

	first := c.Get(context.Background())
	if first.LeadTimeHours != 24 {
		t.Fatalf("expected lead time 24, got %d", first.LeadTimeHours)
	}

	p.set(Config{LeadTimeHours: 48, DefaultDurationMinutes: 45}, nil)
	*now = now.Add(30 * time.Second)

	if got := c.Get(context.Background()); got.LeadTimeHours != 24 {
		t.Errorf("expected cached lead time 24 within ttl, got %d", got.LeadTimeHours)
	}
	if p.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.callCount())
	}

	*now = now.Add(time.Minute)
	if got := c.Get(context.Background()); got.LeadTimeHours != 48 {
		t.Errorf("expected refreshed lead time 48 after ttl, got %d", got.LeadTimeHours)
	}
}

func TestCacheFallsBackWhenNeverLoaded(t *testing.T) {
	p := &stubProvider{err: errors.New("db down")}
	c, _ := newTestCache(p, time.Minute)

	if got := c.Get(context.Background()); got != fallback {
		t.Fatalf("expected fallback %+v, got %+v", fallback, got)
	}
}

func TestCacheKeepsStaleValueOnRefreshFailure(t *testing.T) {
	p := &stubProvider{cfg: Config{LeadTimeHours: 6, DefaultDurationMinutes: 30}}
	c, now := newTestCache(p, time.Minute)
	c.Get(context.Background())

	p.set(Config{}, errors.New("db down"))
	*now = now.Add(2 * time.Minute)

	if got := c.Get(context.Background()); got.LeadTimeHours != 6 {
		t.Fatalf("expected stale lead time 6, got %d", got.LeadTimeHours)
	}
}

func TestCacheBacksOffWhileProviderFails(t *testing.T) {
	p := &stubProvider{cfg: Config{LeadTimeHours: 6, DefaultDurationMinutes: 30}}
	c, now := newTestCache(p, time.Minute)
	c.Get(context.Background())

	p.set(Config{}, errors.New("db down"))
	*now = now.Add(2 * time.Minute)

	for i := 0; i < 10; i++ {
		if got := c.Get(context.Background()); got.LeadTimeHours != 6 {
			t.Fatalf("expected stale lead time 6, got %d", got.LeadTimeHours)
		}
	}
	if p.callCount() != 2 {
		t.Fatalf("expected one failed reload, got %d provider calls", p.callCount())
	}

	p.set(Config{LeadTimeHours: 8, DefaultDurationMinutes: 30}, nil)
	*now = now.Add(failureBackoff)
	if got := c.Get(context.Background()); got.LeadTimeHours != 8 {
		t.Fatalf("expected recovered lead time 8, got %d", got.LeadTimeHours)
	}
	if p.callCount() != 3 {
		t.Fatalf("expected a retry after the backoff, got %d provider calls", p.callCount())
	}
}

type blockingProvider struct {
	stubProvider
	release chan struct{}
}

func (p *blockingProvider) LoadPolicy(ctx context.Context) (Config, error) {
	<-p.release
	return p.stubProvider.LoadPolicy(ctx)
}

func TestCacheSharesConcurrentReloads(t *testing.T) {
	p := &blockingProvider{
		stubProvider: stubProvider{cfg: Config{LeadTimeHours: 4, DefaultDurationMinutes: 30}},
		release:      make(chan struct{}),
	}
	c, _ := newTestCache(p, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	if p.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", p.callCount())
	}
	if got := c.Get(context.Background()); got.LeadTimeHours != 4 {
		t.Fatalf("expected lead time 4, got %d", got.LeadTimeHours)
	}
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	p := &stubProvider{cfg: Config{LeadTimeHours: 1, DefaultDurationMinutes: 30}}
	c, _ := newTestCache(p, time.Hour)
	c.Get(context.Background())

	p.set(Config{LeadTimeHours: 3, DefaultDurationMinutes: 30}, nil)
	c.Invalidate()

	if got := c.Get(context.Background()); got.LeadTimeHours != 3 {
		t.Fatalf("expected reloaded lead time 3, got %d", got.LeadTimeHours)
	}
}

func TestCacheRejectsShortDefaultDuration(t *testing.T) {
	p := &stubProvider{cfg: Config{LeadTimeHours: 1, DefaultDurationMinutes: 5}}
	c, _ := newTestCache(p, time.Hour)

	if got := c.Get(context.Background()); got.DefaultDurationMinutes != fallback.DefaultDurationMinutes {
		t.Fatalf("expected fallback duration %d, got %d", fallback.DefaultDurationMinutes, got.DefaultDurationMinutes)
	}
}

func TestListenForInvalidations(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := &stubProvider{cfg: Config{LeadTimeHours: 1, DefaultDurationMinutes: 30}}
	c, _ := newTestCache(p, time.Hour)
	c.Get(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenForInvalidations(ctx, rdb, "settings", c, zap.NewNop())
	}()

	p.set(Config{LeadTimeHours: 9, DefaultDurationMinutes: 30}, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		// Publishing before the subscription is live is dropped, so keep publishing.
		if err := PublishInvalidation(context.Background(), rdb, "settings"); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if c.Get(context.Background()).LeadTimeHours == 9 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache was never invalidated")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listener returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}
