package syncqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the lifecycle state of a stock change event
type EventStatus string

const (
	EventStatusPending    EventStatus = "PENDING"
	EventStatusProcessing EventStatus = "PROCESSING"
	EventStatusFailed     EventStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusPending, EventStatusProcessing, EventStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	return string(s)
}

// StockChangeEvent is the single queue row kept per product while a
// storefront synchronization is outstanding. The row is merged in place on
// every new observation and deleted once the synchronization for its
// current version has been confirmed.
type StockChangeEvent struct {
	ProductID    uuid.UUID
	Priority     Priority
	Reason       Reason
	EventVersion time.Time
	Status       EventStatus
	LockedAt     *time.Time
	LockedBy     string
	Attempts     int
	NextRetryAt  *time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewStockChangeEvent creates a pending event for the first observation of a product
func NewStockChangeEvent(productID uuid.UUID, decision PriorityDecision, version time.Time) *StockChangeEvent {
	now := time.Now()
	return &StockChangeEvent{
		ProductID:    productID,
		Priority:     decision.Priority,
		Reason:       decision.Reason,
		EventVersion: version,
		Status:       EventStatusPending,
		Attempts:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Claim marks the event as being processed by the given worker
func (e *StockChangeEvent) Claim(workerID string, now time.Time) error {
	if e.Status != EventStatusPending {
		return ErrEventNotClaimable
	}
	e.Status = EventStatusProcessing
	e.LockedAt = &now
	e.LockedBy = workerID
	e.UpdatedAt = now
	return nil
}

// ReleaseClaim returns a claimed event to the pending pool without touching
// attempts or version. Used for stale skips and crash recovery.
func (e *StockChangeEvent) ReleaseClaim() {
	e.Status = EventStatusPending
	e.LockedAt = nil
	e.LockedBy = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
}

// ScheduleRetry records a retryable failure: the event goes back to pending
// with an incremented attempt count and a future retry time.
func (e *StockChangeEvent) ScheduleRetry(errMsg string, now time.Time) {
	e.Attempts++
	e.LastError = errMsg
	e.Status = EventStatusPending
	e.LockedAt = nil
	e.LockedBy = ""
	retryAt := now.Add(BackoffDelay(e.Attempts))
	e.NextRetryAt = &retryAt
	e.UpdatedAt = now
}

// MarkFailed records a permanent failure. The row stays for operator
// inspection and is never retried automatically.
func (e *StockChangeEvent) MarkFailed(errMsg string, now time.Time) {
	e.Status = EventStatusFailed
	e.LastError = errMsg
	e.LockedAt = nil
	e.LockedBy = ""
	e.NextRetryAt = nil
	e.UpdatedAt = now
}

// ResetForRetry returns a permanently failed event to the pending pool.
// Operator action; attempts start over.
func (e *StockChangeEvent) ResetForRetry() error {
	if e.Status != EventStatusFailed {
		return ErrEventNotFailed
	}
	e.Status = EventStatusPending
	e.Attempts = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// IsDue returns true if the event is eligible for claiming at the given time
func (e *StockChangeEvent) IsDue(now time.Time) bool {
	if e.Status != EventStatusPending {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// backoffSchedule holds the fixed per-attempt wait before a retried event
// becomes claimable again. Fixed steps rather than multiplicative growth so
// retry timing stays predictable and bounded.
var backoffSchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// maxBackoff applies from the fourth attempt onward
const maxBackoff = time.Hour

// BackoffDelay returns the wait duration before the given attempt number
// (1-based) may be retried.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		return maxBackoff
	}
	return backoffSchedule[attempt-1]
}

// SyncTrigger is the outbound port to the storefront synchronization
// collaborator. The call is expensive network I/O and must be idempotent on
// the callee side: the queue guarantees at-least-once invocation.
type SyncTrigger interface {
	// Trigger pushes the current state of the product to the storefront.
	// A non-nil error carries the collaborator's failure text, which the
	// caller classifies as retryable or permanent.
	Trigger(ctx context.Context, productID uuid.UUID, reason Reason) error
}
