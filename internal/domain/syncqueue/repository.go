package syncqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEventNotFound indicates no outstanding event exists for the product
	ErrEventNotFound = errors.New("syncqueue: event not found")
	// ErrEventNotClaimable indicates the event is not in a claimable state
	ErrEventNotClaimable = errors.New("syncqueue: event is not pending")
	// ErrEventNotFailed indicates a retry was requested for a non-failed event
	ErrEventNotFailed = errors.New("syncqueue: event is not in failed state")
	// ErrClaimLost indicates a guarded update matched no row because the
	// claim was taken over or superseded in the meantime
	ErrClaimLost = errors.New("syncqueue: claim no longer held")
)

// QueueStats is a point-in-time snapshot of queue depth
type QueueStats struct {
	PendingHigh   int64
	PendingNormal int64
	Processing    int64
	Failed        int64
}

// StockChangeEventRepository is the persistence port for the event queue.
//
// All mutation goes through three atomic primitives: the conflict-free
// merge upsert, the skip-locked batch claim, and the guarded
// compare-and-delete / lock-guarded updates. No other synchronization is
// used anywhere in the pipeline.
type StockChangeEventRepository interface {
	// Upsert inserts the event or merges it into the existing row for the
	// same product: version takes the maximum, priority never weakens,
	// status is forced back to pending and any claim or retry timer is
	// cleared. Concurrent calls for one product converge without locking.
	Upsert(ctx context.Context, event *StockChangeEvent) error

	// FindByProductID returns the outstanding event for a product, or
	// ErrEventNotFound.
	FindByProductID(ctx context.Context, productID uuid.UUID) (*StockChangeEvent, error)

	// ClaimBatch atomically claims up to limit due pending events for the
	// given worker. High-priority events are exhausted before any
	// normal-priority event is considered; within a priority, events are
	// ordered by event version then row creation time. Rows locked by a
	// concurrent claimer are skipped, never waited on.
	ClaimBatch(ctx context.Context, workerID string, limit int, now time.Time) ([]*StockChangeEvent, error)

	// ReleaseClaim returns a row claimed by workerID to pending, clearing
	// lock fields and leaving attempts and version untouched. Returns
	// ErrClaimLost if the row is no longer held by this worker.
	ReleaseClaim(ctx context.Context, productID uuid.UUID, workerID string) error

	// ScheduleRetry applies a retryable failure to a row claimed by
	// workerID: attempts incremented, next retry set, status pending, lock
	// cleared. Returns ErrClaimLost if the claim is gone.
	ScheduleRetry(ctx context.Context, productID uuid.UUID, workerID string, nextRetryAt time.Time, lastError string) error

	// MarkFailed parks a row claimed by workerID as permanently failed.
	// Returns ErrClaimLost if the claim is gone.
	MarkFailed(ctx context.Context, productID uuid.UUID, workerID string, lastError string) error

	// CompareAndDelete removes the row only if it still carries the given
	// event version. Returns false when a newer observation was merged in
	// the meantime.
	CompareAndDelete(ctx context.Context, productID uuid.UUID, version time.Time) (bool, error)

	// ReclaimStale returns rows stuck in processing since before the cutoff
	// to the pending pool and reports how many were recovered.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns current queue depth by state
	Stats(ctx context.Context) (QueueStats, error)

	// FindFailed returns permanently failed events with pagination, newest
	// first, for operator inspection.
	FindFailed(ctx context.Context, page, pageSize int) ([]*StockChangeEvent, int64, error)

	// ResetFailed returns a permanently failed event to the pending pool
	// with attempts cleared. Operator action.
	ResetFailed(ctx context.Context, productID uuid.UUID) error
}
