package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appsync "github.com/stocksync/backend/internal/application/syncqueue"
)

// RunnerConfig holds configuration for the queue runner.
type RunnerConfig struct {
	Channel      string        // Pub/sub wake channel
	PollInterval time.Duration // Safety-net interval between passes
}

// DefaultRunnerConfig returns default configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Channel:      DefaultWakeChannel,
		PollInterval: 30 * time.Second,
	}
}

// Runner drives the queue processor in the background. A pass runs whenever
// a wake signal arrives on the pub/sub channel or the poll interval elapses.
// Signals received mid-pass coalesce into a single follow-up pass.
type Runner struct {
	processor *appsync.Processor
	client    *redis.Client
	config    RunnerConfig
	logger    *zap.Logger

	wakeCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a new queue runner.
func NewRunner(processor *appsync.Processor, client *redis.Client, config RunnerConfig, logger *zap.Logger) *Runner {
	if config.Channel == "" {
		config.Channel = DefaultWakeChannel
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}

	return &Runner{
		processor: processor,
		client:    client,
		config:    config,
		logger:    logger,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start starts the background subscription and processing loops.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	pubsub := r.client.Subscribe(ctx, r.config.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return err
	}

	r.wg.Add(1)
	go r.subscribeLoop(ctx, pubsub)

	r.wg.Add(1)
	go r.processLoop(ctx)

	r.logger.Info("queue runner started",
		zap.String("channel", r.config.Channel),
		zap.Duration("poll_interval", r.config.PollInterval),
	)

	return nil
}

// Stop gracefully stops the runner.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("queue runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscribeLoop forwards pub/sub messages into the wake channel.
func (r *Runner) subscribeLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("Wake channel closed, relying on poll interval")
				return
			}
			_ = msg
			r.wake()
		}
	}
}

// wake queues a processing pass if one is not already queued.
func (r *Runner) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// processLoop runs processing passes on wake signals and on the ticker.
func (r *Runner) processLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	// Drain whatever is already queued on startup
	r.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wakeCh:
			r.runPass(ctx)
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

// runPass executes a single processing pass.
func (r *Runner) runPass(ctx context.Context) {
	stats, err := r.processor.Process(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("Processing pass failed", zap.Error(err))
		return
	}

	if stats.Claimed > 0 || stats.Reclaimed > 0 {
		r.logger.Info("processing pass complete",
			zap.Int("claimed", stats.Claimed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
			zap.Int("stale_skips", stats.StaleSkips),
			zap.Int64("reclaimed", stats.Reclaimed),
		)
	}
}
