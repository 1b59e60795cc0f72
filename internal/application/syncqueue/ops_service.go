package syncqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stocksync/backend/internal/domain/syncqueue"
	"go.uber.org/zap"
)

// OpsService exposes queue state for operator tooling: depth inspection and
// manual remediation of permanently failed events.
type OpsService struct {
	repo   syncqueue.StockChangeEventRepository
	logger *zap.Logger
}

// NewOpsService creates a new OpsService
func NewOpsService(repo syncqueue.StockChangeEventRepository, logger *zap.Logger) *OpsService {
	return &OpsService{repo: repo, logger: logger}
}

// EventDTO represents a queue row for the ops surface
type EventDTO struct {
	ProductID    uuid.UUID  `json:"product_id"`
	Priority     string     `json:"priority"`
	Reason       string     `json:"reason"`
	EventVersion time.Time  `json:"event_version"`
	Status       string     `json:"status"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	LockedBy     string     `json:"locked_by,omitempty"`
	Attempts     int        `json:"attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FailedEventFilter represents pagination for the failed-event listing
type FailedEventFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// FailedEventList represents a paginated failed-event listing
type FailedEventList struct {
	Events     []EventDTO `json:"events"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// QueueStatsDTO represents queue depth by state
type QueueStatsDTO struct {
	PendingHigh   int64 `json:"pending_high"`
	PendingNormal int64 `json:"pending_normal"`
	Processing    int64 `json:"processing"`
	Failed        int64 `json:"failed"`
	Total         int64 `json:"total"`
}

// GetStats returns current queue depth
func (s *OpsService) GetStats(ctx context.Context) (*QueueStatsDTO, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.Error("Failed to read queue stats", zap.Error(err))
		return nil, err
	}
	return &QueueStatsDTO{
		PendingHigh:   stats.PendingHigh,
		PendingNormal: stats.PendingNormal,
		Processing:    stats.Processing,
		Failed:        stats.Failed,
		Total:         stats.PendingHigh + stats.PendingNormal + stats.Processing + stats.Failed,
	}, nil
}

// GetFailedEvents returns permanently failed events with pagination
func (s *OpsService) GetFailedEvents(ctx context.Context, filter FailedEventFilter) (*FailedEventList, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	events, total, err := s.repo.FindFailed(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to list failed events", zap.Error(err))
		return nil, err
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}

	return &FailedEventList{
		Events:     dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// RetryFailedEvent returns a permanently failed event to the pending pool
func (s *OpsService) RetryFailedEvent(ctx context.Context, productID uuid.UUID) (*EventDTO, error) {
	if err := s.repo.ResetFailed(ctx, productID); err != nil {
		s.logger.Error("Failed to reset failed event",
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	event, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Failed event reset for retry", zap.String("product_id", productID.String()))
	dto := toEventDTO(event)
	return &dto, nil
}

func toEventDTO(e *syncqueue.StockChangeEvent) EventDTO {
	return EventDTO{
		ProductID:    e.ProductID,
		Priority:     e.Priority.String(),
		Reason:       e.Reason.String(),
		EventVersion: e.EventVersion,
		Status:       e.Status.String(),
		LockedAt:     e.LockedAt,
		LockedBy:     e.LockedBy,
		Attempts:     e.Attempts,
		NextRetryAt:  e.NextRetryAt,
		LastError:    e.LastError,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}
