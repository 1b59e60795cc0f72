package syncqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stocksync/backend/internal/domain/syncqueue"
)

// fakeEventRepo is an in-memory StockChangeEventRepository that mirrors the
// merge, claim and guard semantics of the real repository.
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*syncqueue.StockChangeEvent

	// afterClaim runs after ClaimBatch takes its snapshot, letting tests
	// interleave writes between the claim and the first re-read
	afterClaim func()

	upsertCalls int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[uuid.UUID]*syncqueue.StockChangeEvent{}}
}

func copyEvent(e *syncqueue.StockChangeEvent) *syncqueue.StockChangeEvent {
	c := *e
	if e.LockedAt != nil {
		t := *e.LockedAt
		c.LockedAt = &t
	}
	if e.NextRetryAt != nil {
		t := *e.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}

func (r *fakeEventRepo) Upsert(ctx context.Context, event *syncqueue.StockChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++

	existing, ok := r.events[event.ProductID]
	if !ok {
		r.events[event.ProductID] = copyEvent(event)
		return nil
	}

	if event.EventVersion.After(existing.EventVersion) {
		existing.EventVersion = event.EventVersion
	}
	if event.Priority == syncqueue.PriorityHigh {
		existing.Reason = event.Reason
	} else if existing.Priority != syncqueue.PriorityHigh {
		existing.Reason = event.Reason
	}
	existing.Priority = existing.Priority.Merge(event.Priority)
	existing.Status = syncqueue.EventStatusPending
	existing.Attempts = 0
	existing.NextRetryAt = nil
	existing.LockedAt = nil
	existing.LockedBy = ""
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeEventRepo) FindByProductID(ctx context.Context, productID uuid.UUID) (*syncqueue.StockChangeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok {
		return nil, syncqueue.ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (r *fakeEventRepo) ClaimBatch(ctx context.Context, workerID string, limit int, now time.Time) ([]*syncqueue.StockChangeEvent, error) {
	r.mu.Lock()

	var due []*syncqueue.StockChangeEvent
	for _, e := range r.events {
		if e.IsDue(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority == syncqueue.PriorityHigh
		}
		if !due[i].EventVersion.Equal(due[j].EventVersion) {
			return due[i].EventVersion.Before(due[j].EventVersion)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*syncqueue.StockChangeEvent, 0, len(due))
	for _, e := range due {
		e.Status = syncqueue.EventStatusProcessing
		lockedAt := now
		e.LockedAt = &lockedAt
		e.LockedBy = workerID
		claimed = append(claimed, copyEvent(e))
	}
	r.mu.Unlock()

	if r.afterClaim != nil && len(claimed) > 0 {
		r.afterClaim()
	}
	return claimed, nil
}

func (r *fakeEventRepo) ReleaseClaim(ctx context.Context, productID uuid.UUID, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok || e.Status != syncqueue.EventStatusProcessing || e.LockedBy != workerID {
		return syncqueue.ErrClaimLost
	}
	e.ReleaseClaim()
	return nil
}

func (r *fakeEventRepo) ScheduleRetry(ctx context.Context, productID uuid.UUID, workerID string, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok || e.Status != syncqueue.EventStatusProcessing || e.LockedBy != workerID {
		return syncqueue.ErrClaimLost
	}
	e.Attempts++
	e.LastError = lastError
	e.Status = syncqueue.EventStatusPending
	e.LockedAt = nil
	e.LockedBy = ""
	retryAt := nextRetryAt
	e.NextRetryAt = &retryAt
	e.UpdatedAt = time.Now()
	return nil
}

func (r *fakeEventRepo) MarkFailed(ctx context.Context, productID uuid.UUID, workerID string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok || e.Status != syncqueue.EventStatusProcessing || e.LockedBy != workerID {
		return syncqueue.ErrClaimLost
	}
	e.MarkFailed(lastError, time.Now())
	return nil
}

func (r *fakeEventRepo) CompareAndDelete(ctx context.Context, productID uuid.UUID, version time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok || !e.EventVersion.Equal(version) {
		return false, nil
	}
	delete(r.events, productID)
	return true, nil
}

func (r *fakeEventRepo) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.Status == syncqueue.EventStatusProcessing && e.LockedAt != nil && e.LockedAt.Before(cutoff) {
			e.Status = syncqueue.EventStatusPending
			e.LockedAt = nil
			e.LockedBy = ""
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) Stats(ctx context.Context) (syncqueue.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats syncqueue.QueueStats
	for _, e := range r.events {
		switch {
		case e.Status == syncqueue.EventStatusProcessing:
			stats.Processing++
		case e.Status == syncqueue.EventStatusFailed:
			stats.Failed++
		case e.Priority == syncqueue.PriorityHigh:
			stats.PendingHigh++
		default:
			stats.PendingNormal++
		}
	}
	return stats, nil
}

func (r *fakeEventRepo) FindFailed(ctx context.Context, page, pageSize int) ([]*syncqueue.StockChangeEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []*syncqueue.StockChangeEvent
	for _, e := range r.events {
		if e.Status == syncqueue.EventStatusFailed {
			failed = append(failed, copyEvent(e))
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].UpdatedAt.After(failed[j].UpdatedAt)
	})
	total := int64(len(failed))
	start := (page - 1) * pageSize
	if start >= len(failed) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(failed) {
		end = len(failed)
	}
	return failed[start:end], total, nil
}

func (r *fakeEventRepo) ResetFailed(ctx context.Context, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok {
		return syncqueue.ErrEventNotFound
	}
	return e.ResetForRetry()
}

func (r *fakeEventRepo) get(productID uuid.UUID) *syncqueue.StockChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[productID]
	if !ok {
		return nil
	}
	return copyEvent(e)
}

func (r *fakeEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeTrigger records sync calls and delegates to an optional function
type fakeTrigger struct {
	mu    sync.Mutex
	calls []triggerCall
	fn    func(ctx context.Context, productID uuid.UUID, reason syncqueue.Reason) error
}

type triggerCall struct {
	ProductID uuid.UUID
	Reason    syncqueue.Reason
}

func (t *fakeTrigger) Trigger(ctx context.Context, productID uuid.UUID, reason syncqueue.Reason) error {
	t.mu.Lock()
	t.calls = append(t.calls, triggerCall{ProductID: productID, Reason: reason})
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		return fn(ctx, productID, reason)
	}
	return nil
}

func (t *fakeTrigger) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// fakeMetrics counts signals
type fakeMetrics struct {
	mu         sync.Mutex
	successes  int
	staleSkips int
	retries    int
	permanent  int
	reclaimed  int64
	depths     []syncqueue.QueueStats
	latencies  []time.Duration
}

func (m *fakeMetrics) RecordSuccess(ctx context.Context, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
	m.latencies = append(m.latencies, latency)
}

func (m *fakeMetrics) RecordStaleSkip(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleSkips++
}

func (m *fakeMetrics) RecordRetry(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *fakeMetrics) RecordPermanentFailure(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permanent++
}

func (m *fakeMetrics) RecordReclaimed(ctx context.Context, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimed += count
}

func (m *fakeMetrics) PublishQueueDepth(ctx context.Context, stats syncqueue.QueueStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, stats)
}

// fakeNotifier counts wake-ups
type fakeNotifier struct {
	mu    sync.Mutex
	wakes int
	err   error
}

func (n *fakeNotifier) Wake(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wakes++
	return n.err
}

func (n *fakeNotifier) wakeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wakes
}

// fakeSettings returns a fixed selling-store snapshot
type fakeSettings struct {
	stores syncqueue.SellingStores
	err    error
}

func (s *fakeSettings) SellingStores(ctx context.Context) (syncqueue.SellingStores, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stores, nil
}
