// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/stocksync/backend/internal/domain/syncqueue"
)

// latencyWindowSize bounds the rolling sample kept for the p95 gauge.
const latencyWindowSize = 256

// QueueMetrics provides metrics for the stock change event queue.
// It tracks sync outcomes, queue depth by status, and sync latency
// measured from event creation to successful completion.
type QueueMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	syncSuccessTotal   *Counter
	syncRetryTotal     *Counter
	syncPermanentTotal *Counter
	staleSkipTotal     *Counter
	reclaimedTotal     *Counter

	// Gauge metrics (point-in-time values)
	queueDepth  *Gauge
	latencyP95  *FloatGauge
	syncLatency *Histogram

	// Rolling latency window for the p95 gauge
	mu        sync.Mutex
	latencies []float64
	cursor    int
	filled    bool
}

// NewQueueMetrics creates a new QueueMetrics instance.
func NewQueueMetrics(meter metric.Meter, logger *zap.Logger) (*QueueMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	qm := &QueueMetrics{
		meter:     meter,
		logger:    logger,
		latencies: make([]float64, latencyWindowSize),
	}

	var err error

	qm.syncSuccessTotal, err = NewCounter(
		meter,
		"stocksync_event_success_total",
		"Total number of events synced and removed from the queue",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.syncRetryTotal, err = NewCounter(
		meter,
		"stocksync_event_retry_total",
		"Total number of events scheduled for retry after a transient failure",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.syncPermanentTotal, err = NewCounter(
		meter,
		"stocksync_event_permanent_failure_total",
		"Total number of events parked after a permanent failure",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.staleSkipTotal, err = NewCounter(
		meter,
		"stocksync_event_stale_skip_total",
		"Total number of claims abandoned because a newer version arrived",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.reclaimedTotal, err = NewCounter(
		meter,
		"stocksync_event_reclaimed_total",
		"Total number of stale claims returned to the pending state",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.queueDepth, err = NewGauge(
		meter,
		"stocksync_queue_depth",
		"Current number of events in the queue by status and priority",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	qm.latencyP95, err = NewFloatGauge(
		meter,
		"stocksync_event_latency_p95_seconds",
		"Rolling 95th percentile of event creation-to-completion latency",
		"s",
	)
	if err != nil {
		return nil, err
	}

	qm.syncLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "stocksync_event_latency_seconds",
		Description: "Event creation-to-completion latency",
		Unit:        "s",
		Boundaries:  SyncLatencyBuckets,
	})
	if err != nil {
		return nil, err
	}

	return qm, nil
}

// RecordSuccess records a completed sync with its queue-to-completion latency.
func (qm *QueueMetrics) RecordSuccess(ctx context.Context, latency time.Duration) {
	qm.syncSuccessTotal.Inc(ctx)
	qm.syncLatency.RecordDuration(ctx, latency)
	qm.latencyP95.Record(ctx, qm.observeLatency(latency.Seconds()))
}

// RecordStaleSkip records a claim abandoned because a newer version superseded it.
func (qm *QueueMetrics) RecordStaleSkip(ctx context.Context) {
	qm.staleSkipTotal.Inc(ctx)
}

// RecordRetry records an event scheduled for retry.
func (qm *QueueMetrics) RecordRetry(ctx context.Context) {
	qm.syncRetryTotal.Inc(ctx)
}

// RecordPermanentFailure records an event parked as failed.
func (qm *QueueMetrics) RecordPermanentFailure(ctx context.Context) {
	qm.syncPermanentTotal.Inc(ctx)
}

// RecordReclaimed records stale claims returned to pending.
func (qm *QueueMetrics) RecordReclaimed(ctx context.Context, count int64) {
	if count > 0 {
		qm.reclaimedTotal.Add(ctx, count)
	}
}

// PublishQueueDepth publishes the current queue composition.
func (qm *QueueMetrics) PublishQueueDepth(ctx context.Context, stats syncqueue.QueueStats) {
	qm.queueDepth.Record(ctx, stats.PendingHigh,
		AttrStatus.String("pending"), AttrPriority.String("high"))
	qm.queueDepth.Record(ctx, stats.PendingNormal,
		AttrStatus.String("pending"), AttrPriority.String("normal"))
	qm.queueDepth.Record(ctx, stats.Processing,
		AttrStatus.String("processing"), AttrPriority.String("all"))
	qm.queueDepth.Record(ctx, stats.Failed,
		AttrStatus.String("failed"), AttrPriority.String("all"))
}

// observeLatency folds a sample into the rolling window and returns the
// current 95th percentile of the retained samples.
func (qm *QueueMetrics) observeLatency(seconds float64) float64 {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	qm.latencies[qm.cursor] = seconds
	qm.cursor++
	if qm.cursor == len(qm.latencies) {
		qm.cursor = 0
		qm.filled = true
	}

	n := qm.cursor
	if qm.filled {
		n = len(qm.latencies)
	}

	sample := make([]float64, n)
	copy(sample, qm.latencies[:n])
	sort.Float64s(sample)

	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	return sample[idx]
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewQueueMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
