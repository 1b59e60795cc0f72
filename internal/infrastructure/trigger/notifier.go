// Package trigger wakes the queue processor when new events are recorded.
// A Redis pub/sub channel carries the wake-up signal between processes and a
// periodic ticker backs it up, so a lost message only delays processing until
// the next tick.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultWakeChannel is the pub/sub channel the recorder and runner agree on.
const DefaultWakeChannel = "stocksync:queue:wake"

// RedisWakeNotifier publishes wake-up signals over Redis pub/sub.
// The signal carries no payload, subscribers re-read the queue on receipt.
type RedisWakeNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// RedisWakeNotifierOption is a functional option for configuring the notifier.
type RedisWakeNotifierOption func(*RedisWakeNotifier)

// WithNotifierChannel sets the pub/sub channel name.
func WithNotifierChannel(channel string) RedisWakeNotifierOption {
	return func(n *RedisWakeNotifier) {
		n.channel = channel
	}
}

// WithNotifierLogger sets the logger for the notifier.
func WithNotifierLogger(logger *zap.Logger) RedisWakeNotifierOption {
	return func(n *RedisWakeNotifier) {
		n.logger = logger
	}
}

// NewRedisWakeNotifier creates a notifier with an existing Redis client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisWakeNotifier(client *redis.Client, opts ...RedisWakeNotifierOption) *RedisWakeNotifier {
	n := &RedisWakeNotifier{
		client:  client,
		channel: DefaultWakeChannel,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Wake publishes a wake-up signal. Failures are returned to the caller but
// are safe to ignore, the runner's ticker covers missed signals.
func (n *RedisWakeNotifier) Wake(ctx context.Context) error {
	if err := n.client.Publish(ctx, n.channel, time.Now().UnixNano()).Err(); err != nil {
		n.logger.Warn("Failed to publish wake signal",
			zap.String("channel", n.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish wake signal: %w", err)
	}
	return nil
}
