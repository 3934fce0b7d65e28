package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("pet lock not acquired")
)

// Locker guards the check-then-write section of a booking per pet, so two
// concurrent requests for the same pet never race on the conflict check.
type Locker interface {
	WithPetLock(ctx context.Context, petID uuid.UUID, fn func(ctx context.Context) error) error
}

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 200 * time.Millisecond
)

type redisPetLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisPetLocker creates a locker that uses a per pet Redis key. A busy
// lock is retried with backoff for up to wait before giving up.
func NewRedisPetLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisPetLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func PetLockKey(petID uuid.UUID) string {
	return fmt.Sprintf("lock:pet:%s", petID.String())
}

func (l *redisPetLocker) WithPetLock(ctx context.Context, petID uuid.UUID, fn func(ctx context.Context) error) error {
	key := PetLockKey(petID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// The caller's ctx may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisPetLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	backoff := minLockBackoff

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctxErr)
			}
			return fmt.Errorf("acquire pet lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxLockBackoff {
			backoff = maxLockBackoff
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPetLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release pet lock: %w", err)
	}
	return nil
}
