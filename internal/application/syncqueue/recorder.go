package syncqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocksync/backend/internal/domain/syncqueue"
	"go.uber.org/zap"
)

// WakeNotifier signals processor workers that new work may be available.
// The signal is at-least-once and fire-and-forget; duplicates and losses are
// both harmless because the drain loop is idempotent and a periodic ticker
// backstops lost wake-ups.
type WakeNotifier interface {
	Wake(ctx context.Context) error
}

// Recorder is the ingestion point of the pipeline. Every stock mutation is
// recorded through it; rapid bursts for the same product collapse into a
// single queue row via the repository's conflict-free merge.
type Recorder struct {
	repo     syncqueue.StockChangeEventRepository
	settings syncqueue.SettingsProvider
	notifier WakeNotifier
	logger   *zap.Logger
}

// NewRecorder creates a new Recorder
func NewRecorder(
	repo syncqueue.StockChangeEventRepository,
	settings syncqueue.SettingsProvider,
	notifier WakeNotifier,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		repo:     repo,
		settings: settings,
		notifier: notifier,
		logger:   logger,
	}
}

// Record merges a stock observation into the product's outstanding event and
// wakes the processor. The merge is synchronous and cheap; the expensive
// storefront call happens later in the processor.
func (r *Recorder) Record(
	ctx context.Context,
	productID uuid.UUID,
	storeName string,
	newQuantity decimal.Decimal,
	observationVersion time.Time,
	priceImpact bool,
) error {
	stores, err := r.settings.SellingStores(ctx)
	if err != nil {
		return err
	}

	decision := syncqueue.ResolvePriority(stores, storeName, newQuantity, priceImpact)
	event := syncqueue.NewStockChangeEvent(productID, decision, observationVersion)

	if err := r.repo.Upsert(ctx, event); err != nil {
		r.logger.Error("Failed to record stock change event",
			zap.String("product_id", productID.String()),
			zap.String("store", storeName),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("Stock change event recorded",
		zap.String("product_id", productID.String()),
		zap.String("priority", decision.Priority.String()),
		zap.String("reason", decision.Reason.String()),
		zap.Time("event_version", observationVersion),
	)

	// A lost wake-up is recovered by the periodic safety net, so the write
	// never fails on notification problems.
	if err := r.notifier.Wake(ctx); err != nil {
		r.logger.Warn("Failed to wake processor workers", zap.Error(err))
	}

	return nil
}
