package policy

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenForInvalidations drops the cached policy whenever a message arrives
// on channel. It blocks until ctx is done or the subscription closes.
func ListenForInvalidations(ctx context.Context, rdb *redis.Client, channel string, cache *Cache, logger *zap.Logger) error {
	sub := rdb.Subscribe(ctx, channel)
	defer func() {
		_ = sub.Close()
	}()

	// Receive returns once the server has confirmed the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			cache.Invalidate()
			logger.Info("scheduling policy invalidated",
				zap.String("channel", msg.Channel),
				zap.String("payload", msg.Payload),
			)
		}
	}
}

// PublishInvalidation notifies every running instance that the settings row changed.
func PublishInvalidation(ctx context.Context, rdb *redis.Client, channel string) error {
	if err := rdb.Publish(ctx, channel, "updated").Err(); err != nil {
		return fmt.Errorf("publish policy invalidation: %w", err)
	}
	return nil
}
