package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stocksync/backend/internal/domain/syncqueue"
	"github.com/stocksync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockChangeEventRepository implements StockChangeEventRepository using GORM
type GormStockChangeEventRepository struct {
	db *gorm.DB
}

// NewGormStockChangeEventRepository creates a new GORM-based event repository
func NewGormStockChangeEventRepository(db *gorm.DB) *GormStockChangeEventRepository {
	return &GormStockChangeEventRepository{db: db}
}

// Upsert inserts or merges the event for its product in a single statement.
// ON CONFLICT resolves concurrent writers without locking: version takes the
// maximum of both sides, priority never weakens, reason follows whichever
// side is high (incoming wins ties), and the row returns to pending with
// claim and retry state cleared.
func (r *GormStockChangeEventRepository) Upsert(ctx context.Context, event *syncqueue.StockChangeEvent) error {
	model := models.StockChangeEventModelFromDomain(event)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"event_version": gorm.Expr("GREATEST(stock_change_events.event_version, excluded.event_version)"),
				"priority": gorm.Expr(
					"CASE WHEN stock_change_events.priority = ? OR excluded.priority = ? THEN ? ELSE ? END",
					syncqueue.PriorityHigh.String(), syncqueue.PriorityHigh.String(),
					syncqueue.PriorityHigh.String(), syncqueue.PriorityNormal.String(),
				),
				"reason": gorm.Expr(
					"CASE WHEN excluded.priority = ? THEN excluded.reason WHEN stock_change_events.priority = ? THEN stock_change_events.reason ELSE excluded.reason END",
					syncqueue.PriorityHigh.String(), syncqueue.PriorityHigh.String(),
				),
				"status":        syncqueue.EventStatusPending.String(),
				"attempts":      0,
				"next_retry_at": gorm.Expr("NULL"),
				"locked_at":     gorm.Expr("NULL"),
				"locked_by":     gorm.Expr("NULL"),
				"updated_at":    time.Now(),
			}),
		}).
		Create(model).Error
}

// FindByProductID retrieves the outstanding event for a product
func (r *GormStockChangeEventRepository) FindByProductID(ctx context.Context, productID uuid.UUID) (*syncqueue.StockChangeEvent, error) {
	var model models.StockChangeEventModel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, syncqueue.ErrEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ClaimBatch claims up to limit due pending events under FOR UPDATE SKIP
// LOCKED, draining high priority completely before touching normal priority.
func (r *GormStockChangeEventRepository) ClaimBatch(ctx context.Context, workerID string, limit int, now time.Time) ([]*syncqueue.StockChangeEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*syncqueue.StockChangeEvent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, priority := range []syncqueue.Priority{syncqueue.PriorityHigh, syncqueue.PriorityNormal} {
			remaining := limit - len(claimed)
			if remaining <= 0 {
				break
			}

			var batch []*models.StockChangeEventModel
			if err := tx.
				Clauses(clause.Locking{
					Strength: "UPDATE",
					Options:  "SKIP LOCKED",
				}).
				Where("status = ? AND priority = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
					syncqueue.EventStatusPending.String(), priority.String(), now).
				Order("event_version ASC, created_at ASC").
				Limit(remaining).
				Find(&batch).Error; err != nil {
				return err
			}

			if len(batch) == 0 {
				continue
			}

			ids := make([]uuid.UUID, len(batch))
			for i, m := range batch {
				ids[i] = m.ProductID
			}

			if err := tx.Model(&models.StockChangeEventModel{}).
				Where("product_id IN ?", ids).
				Updates(map[string]interface{}{
					"status":     syncqueue.EventStatusProcessing.String(),
					"locked_at":  now,
					"locked_by":  workerID,
					"updated_at": now,
				}).Error; err != nil {
				return err
			}

			for _, m := range batch {
				m.Status = syncqueue.EventStatusProcessing.String()
				lockedAt := now
				m.LockedAt = &lockedAt
				lockedBy := workerID
				m.LockedBy = &lockedBy
				m.UpdatedAt = now
				claimed = append(claimed, m.ToDomain())
			}
		}
		return nil
	})

	return claimed, err
}

// ReleaseClaim returns a row held by workerID to pending without touching
// attempts or version
func (r *GormStockChangeEventRepository) ReleaseClaim(ctx context.Context, productID uuid.UUID, workerID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("product_id = ? AND status = ? AND locked_by = ?",
			productID, syncqueue.EventStatusProcessing.String(), workerID).
		Updates(map[string]interface{}{
			"status":        syncqueue.EventStatusPending.String(),
			"locked_at":     gorm.Expr("NULL"),
			"locked_by":     gorm.Expr("NULL"),
			"next_retry_at": gorm.Expr("NULL"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncqueue.ErrClaimLost
	}
	return nil
}

// ScheduleRetry applies a retryable failure to a row held by workerID
func (r *GormStockChangeEventRepository) ScheduleRetry(ctx context.Context, productID uuid.UUID, workerID string, nextRetryAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("product_id = ? AND status = ? AND locked_by = ?",
			productID, syncqueue.EventStatusProcessing.String(), workerID).
		Updates(map[string]interface{}{
			"status":        syncqueue.EventStatusPending.String(),
			"attempts":      gorm.Expr("attempts + 1"),
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
			"locked_at":     gorm.Expr("NULL"),
			"locked_by":     gorm.Expr("NULL"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncqueue.ErrClaimLost
	}
	return nil
}

// MarkFailed parks a row held by workerID as permanently failed
func (r *GormStockChangeEventRepository) MarkFailed(ctx context.Context, productID uuid.UUID, workerID string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("product_id = ? AND status = ? AND locked_by = ?",
			productID, syncqueue.EventStatusProcessing.String(), workerID).
		Updates(map[string]interface{}{
			"status":        syncqueue.EventStatusFailed.String(),
			"last_error":    lastError,
			"next_retry_at": gorm.Expr("NULL"),
			"locked_at":     gorm.Expr("NULL"),
			"locked_by":     gorm.Expr("NULL"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncqueue.ErrClaimLost
	}
	return nil
}

// CompareAndDelete removes the row only while it still carries the claimed
// version. Zero rows affected means a newer observation was merged in the
// meantime and the row must survive.
func (r *GormStockChangeEventRepository) CompareAndDelete(ctx context.Context, productID uuid.UUID, version time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("product_id = ? AND event_version = ?", productID, version).
		Delete(&models.StockChangeEventModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReclaimStale returns rows stuck in processing since before the cutoff to
// the pending pool. Attempts and version stay untouched so crash recovery
// never loses or reorders work.
func (r *GormStockChangeEventRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("status = ? AND locked_at < ?", syncqueue.EventStatusProcessing.String(), cutoff).
		Updates(map[string]interface{}{
			"status":     syncqueue.EventStatusPending.String(),
			"locked_at":  gorm.Expr("NULL"),
			"locked_by":  gorm.Expr("NULL"),
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Stats returns queue depth grouped by state
func (r *GormStockChangeEventRepository) Stats(ctx context.Context) (syncqueue.QueueStats, error) {
	type row struct {
		Status   string
		Priority string
		Count    int64
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Select("status, priority, count(*) as count").
		Group("status, priority").
		Scan(&rows).Error
	if err != nil {
		return syncqueue.QueueStats{}, err
	}

	var stats syncqueue.QueueStats
	for _, row := range rows {
		switch {
		case row.Status == syncqueue.EventStatusProcessing.String():
			stats.Processing += row.Count
		case row.Status == syncqueue.EventStatusFailed.String():
			stats.Failed += row.Count
		case row.Priority == syncqueue.PriorityHigh.String():
			stats.PendingHigh += row.Count
		default:
			stats.PendingNormal += row.Count
		}
	}
	return stats, nil
}

// FindFailed retrieves permanently failed events with pagination
func (r *GormStockChangeEventRepository) FindFailed(ctx context.Context, page, pageSize int) ([]*syncqueue.StockChangeEvent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("status = ?", syncqueue.EventStatusFailed.String()).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var rows []*models.StockChangeEventModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", syncqueue.EventStatusFailed.String()).
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	events := make([]*syncqueue.StockChangeEvent, len(rows))
	for i, m := range rows {
		events[i] = m.ToDomain()
	}
	return events, total, nil
}

// ResetFailed returns a permanently failed event to the pending pool
func (r *GormStockChangeEventRepository) ResetFailed(ctx context.Context, productID uuid.UUID) error {
	event, err := r.FindByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if event.Status != syncqueue.EventStatusFailed {
		return syncqueue.ErrEventNotFailed
	}

	result := r.db.WithContext(ctx).
		Model(&models.StockChangeEventModel{}).
		Where("product_id = ? AND status = ?", productID, syncqueue.EventStatusFailed.String()).
		Updates(map[string]interface{}{
			"status":        syncqueue.EventStatusPending.String(),
			"attempts":      0,
			"last_error":    gorm.Expr("NULL"),
			"next_retry_at": gorm.Expr("NULL"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncqueue.ErrEventNotFailed
	}
	return nil
}

// Ensure GormStockChangeEventRepository implements the port
var _ syncqueue.StockChangeEventRepository = (*GormStockChangeEventRepository)(nil)
