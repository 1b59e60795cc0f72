package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stocksync/backend/internal/domain/syncqueue"
	"go.uber.org/zap"
)

// ProcessorConfig holds configuration for a processing pass
type ProcessorConfig struct {
	// WorkerID identifies this worker in row locks; must be unique per
	// concurrent worker
	WorkerID string
	// BatchSize is the maximum number of events claimed per batch
	BatchSize int
	// MaxBatchCount caps how many batches one Process call may drain
	MaxBatchCount int
	// LockTTL is how long a processing claim may be held before the
	// reclaimer treats its worker as dead
	LockTTL time.Duration
}

// DefaultProcessorConfig returns default processor configuration
func DefaultProcessorConfig(workerID string) ProcessorConfig {
	return ProcessorConfig{
		WorkerID:      workerID,
		BatchSize:     50,
		MaxBatchCount: 20,
		LockTTL:       5 * time.Minute,
	}
}

// ProcessorMetrics receives observability signals from the processor.
// Signals only; nothing here participates in correctness.
type ProcessorMetrics interface {
	RecordSuccess(ctx context.Context, latency time.Duration)
	RecordStaleSkip(ctx context.Context)
	RecordRetry(ctx context.Context)
	RecordPermanentFailure(ctx context.Context)
	RecordReclaimed(ctx context.Context, count int64)
	PublishQueueDepth(ctx context.Context, stats syncqueue.QueueStats)
}

// ProcessStats summarizes one Process call
type ProcessStats struct {
	Batches    int       `json:"batches"`
	Claimed    int       `json:"claimed"`
	Succeeded  int       `json:"succeeded"`
	Retried    int       `json:"retried"`
	Failed     int       `json:"failed"`
	StaleSkips int       `json:"stale_skips"`
	Reclaimed  int64     `json:"reclaimed"`
	StartedAt  time.Time `json:"started_at"`
}

// Processor drains the stock change event queue. Multiple workers may run
// Process concurrently; the skip-locked claim keeps them off each other's
// rows and the two staleness checks keep stale work from overwriting the
// outcome of fresher observations.
type Processor struct {
	repo    syncqueue.StockChangeEventRepository
	trigger syncqueue.SyncTrigger
	metrics ProcessorMetrics
	config  ProcessorConfig
	logger  *zap.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(
	repo syncqueue.StockChangeEventRepository,
	trigger syncqueue.SyncTrigger,
	metrics ProcessorMetrics,
	config ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		repo:    repo,
		trigger: trigger,
		metrics: metrics,
		config:  config,
		logger:  logger,
	}
}

// Process claims and drains batches until the queue is empty or the batch
// ceiling is hit. Safe to call from any trigger at any time; finding no work
// is a cheap no-op.
func (p *Processor) Process(ctx context.Context) (*ProcessStats, error) {
	stats := &ProcessStats{StartedAt: time.Now()}

	for batch := 0; batch < p.config.MaxBatchCount; batch++ {
		now := time.Now()

		reclaimed, err := p.repo.ReclaimStale(ctx, now.Add(-p.config.LockTTL))
		if err != nil {
			p.logger.Error("Failed to reclaim stale locks", zap.Error(err))
			return stats, err
		}
		if reclaimed > 0 {
			stats.Reclaimed += reclaimed
			p.metrics.RecordReclaimed(ctx, reclaimed)
			p.logger.Warn("Reclaimed stale processing locks",
				zap.Int64("count", reclaimed),
				zap.Duration("lock_ttl", p.config.LockTTL),
			)
		}

		claimed, err := p.repo.ClaimBatch(ctx, p.config.WorkerID, p.config.BatchSize, now)
		if err != nil {
			p.logger.Error("Failed to claim event batch", zap.Error(err))
			return stats, err
		}
		if len(claimed) == 0 {
			break
		}

		stats.Batches++
		stats.Claimed += len(claimed)
		for _, event := range claimed {
			p.processEvent(ctx, event, stats)
		}

		p.publishQueueDepth(ctx)
	}

	if stats.Claimed > 0 {
		p.logger.Info("Completed processing pass",
			zap.Int("batches", stats.Batches),
			zap.Int("claimed", stats.Claimed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
			zap.Int("stale_skips", stats.StaleSkips),
		)
	}

	return stats, nil
}

// processEvent handles one claimed event. Panics and unexpected errors are
// contained to the event so the rest of the batch still runs.
func (p *Processor) processEvent(ctx context.Context, claimed *syncqueue.StockChangeEvent, stats *ProcessStats) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while processing event",
				zap.String("product_id", claimed.ProductID.String()),
				zap.Any("panic", r),
			)
			p.retryEvent(ctx, claimed, claimed.Attempts, fmt.Sprintf("panic: %v", r), stats)
		}
	}()

	claimedVersion := claimed.EventVersion

	// First staleness check: a fresher observation may have arrived between
	// the claim and now. Acting on it would push data about to be superseded.
	current, err := p.repo.FindByProductID(ctx, claimed.ProductID)
	if err != nil {
		if errors.Is(err, syncqueue.ErrEventNotFound) {
			stats.StaleSkips++
			p.metrics.RecordStaleSkip(ctx)
			return
		}
		p.logger.Error("Failed to re-read claimed event",
			zap.String("product_id", claimed.ProductID.String()),
			zap.Error(err),
		)
		p.releaseClaim(ctx, claimed, stats)
		return
	}
	if current.EventVersion.After(claimedVersion) {
		p.logger.Debug("Skipping stale claim before sync",
			zap.String("product_id", claimed.ProductID.String()),
			zap.Time("claimed_version", claimedVersion),
			zap.Time("current_version", current.EventVersion),
		)
		p.releaseClaim(ctx, claimed, stats)
		stats.StaleSkips++
		p.metrics.RecordStaleSkip(ctx)
		return
	}

	// A panicking collaborator unwinds to the deferred recover above, which
	// schedules a retry rather than classifying the panic text.
	syncErr := p.trigger.Trigger(ctx, claimed.ProductID, claimed.Reason)

	// Second staleness check: a newer observation that arrived during the
	// call supersedes whatever the call just pushed. The row stays pending
	// so the next pass picks up the newer version.
	after, err := p.repo.FindByProductID(ctx, claimed.ProductID)
	if err != nil {
		if errors.Is(err, syncqueue.ErrEventNotFound) {
			stats.StaleSkips++
			p.metrics.RecordStaleSkip(ctx)
			return
		}
		p.logger.Error("Failed to re-read event after sync",
			zap.String("product_id", claimed.ProductID.String()),
			zap.Error(err),
		)
		p.releaseClaim(ctx, claimed, stats)
		return
	}
	if !after.EventVersion.Equal(claimedVersion) {
		p.logger.Debug("Sync outcome superseded during call",
			zap.String("product_id", claimed.ProductID.String()),
			zap.Time("claimed_version", claimedVersion),
			zap.Time("current_version", after.EventVersion),
		)
		p.releaseClaim(ctx, claimed, stats)
		stats.StaleSkips++
		p.metrics.RecordStaleSkip(ctx)
		return
	}

	if syncErr != nil {
		p.handleFailure(ctx, claimed, after.Attempts, syncErr, stats)
		return
	}

	deleted, err := p.repo.CompareAndDelete(ctx, claimed.ProductID, claimedVersion)
	if err != nil {
		p.logger.Error("Failed to delete completed event",
			zap.String("product_id", claimed.ProductID.String()),
			zap.Error(err),
		)
		p.releaseClaim(ctx, claimed, stats)
		return
	}
	if !deleted {
		// A writer merged a newer observation between the re-read and the
		// delete; the merge already returned the row to pending.
		stats.StaleSkips++
		p.metrics.RecordStaleSkip(ctx)
		return
	}

	latency := time.Since(after.CreatedAt)
	stats.Succeeded++
	p.metrics.RecordSuccess(ctx, latency)
	p.logger.Debug("Stock change synced",
		zap.String("product_id", claimed.ProductID.String()),
		zap.String("reason", claimed.Reason.String()),
		zap.Duration("latency", latency),
	)
}

// handleFailure applies the retry-or-fail transition for a sync failure
func (p *Processor) handleFailure(ctx context.Context, event *syncqueue.StockChangeEvent, attempts int, syncErr error, stats *ProcessStats) {
	message := syncErr.Error()

	switch syncqueue.ClassifyFailure(message) {
	case syncqueue.FailureRetryable:
		p.retryEvent(ctx, event, attempts, message, stats)
	default:
		if err := p.repo.MarkFailed(ctx, event.ProductID, p.config.WorkerID, message); err != nil {
			if errors.Is(err, syncqueue.ErrClaimLost) {
				stats.StaleSkips++
				p.metrics.RecordStaleSkip(ctx)
				return
			}
			p.logger.Error("Failed to park event as failed",
				zap.String("product_id", event.ProductID.String()),
				zap.Error(err),
			)
			return
		}
		stats.Failed++
		p.metrics.RecordPermanentFailure(ctx)
		p.logger.Error("Stock change sync permanently failed",
			zap.String("product_id", event.ProductID.String()),
			zap.String("reason", event.Reason.String()),
			zap.String("error", message),
		)
	}
}

// retryEvent schedules a retryable failure with the fixed backoff table
func (p *Processor) retryEvent(ctx context.Context, event *syncqueue.StockChangeEvent, attempts int, message string, stats *ProcessStats) {
	nextRetryAt := time.Now().Add(syncqueue.BackoffDelay(attempts + 1))
	if err := p.repo.ScheduleRetry(ctx, event.ProductID, p.config.WorkerID, nextRetryAt, message); err != nil {
		if errors.Is(err, syncqueue.ErrClaimLost) {
			stats.StaleSkips++
			p.metrics.RecordStaleSkip(ctx)
			return
		}
		p.logger.Error("Failed to schedule retry",
			zap.String("product_id", event.ProductID.String()),
			zap.Error(err),
		)
		return
	}
	stats.Retried++
	p.metrics.RecordRetry(ctx)
	p.logger.Warn("Stock change sync failed, will retry",
		zap.String("product_id", event.ProductID.String()),
		zap.Int("attempt", attempts+1),
		zap.Time("next_retry_at", nextRetryAt),
		zap.String("error", message),
	)
}

// releaseClaim returns a claimed row to pending, tolerating claims that were
// already taken over by a merge or the reclaimer
func (p *Processor) releaseClaim(ctx context.Context, event *syncqueue.StockChangeEvent, stats *ProcessStats) {
	err := p.repo.ReleaseClaim(ctx, event.ProductID, p.config.WorkerID)
	if err != nil && !errors.Is(err, syncqueue.ErrClaimLost) {
		p.logger.Error("Failed to release claim",
			zap.String("product_id", event.ProductID.String()),
			zap.Error(err),
		)
	}
}

func (p *Processor) publishQueueDepth(ctx context.Context) {
	queueStats, err := p.repo.Stats(ctx)
	if err != nil {
		p.logger.Error("Failed to read queue stats", zap.Error(err))
		return
	}
	p.metrics.PublishQueueDepth(ctx, queueStats)
}
