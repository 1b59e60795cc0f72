package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stocksync/backend/internal/domain/syncqueue"
)

// StockChangeEventModel maps StockChangeEvent to the stock_change_events
// table. One row per product is enforced by the primary key; the dedup
// invariant lives in the schema, not in application code.
type StockChangeEventModel struct {
	ProductID    uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Priority     string     `gorm:"type:varchar(16);not null;index:idx_stock_change_events_claim,priority:1"`
	Reason       string     `gorm:"type:varchar(64);not null"`
	EventVersion time.Time  `gorm:"not null"`
	Status       string     `gorm:"type:varchar(16);not null;index:idx_stock_change_events_claim,priority:2"`
	LockedAt     *time.Time `gorm:"index"`
	LockedBy     *string    `gorm:"type:varchar(128)"`
	Attempts     int        `gorm:"not null;default:0"`
	NextRetryAt  *time.Time
	LastError    *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for StockChangeEventModel
func (StockChangeEventModel) TableName() string {
	return "stock_change_events"
}

// ToDomain converts the model to a domain StockChangeEvent
func (m *StockChangeEventModel) ToDomain() *syncqueue.StockChangeEvent {
	event := &syncqueue.StockChangeEvent{
		ProductID:    m.ProductID,
		Priority:     syncqueue.Priority(m.Priority),
		Reason:       syncqueue.Reason(m.Reason),
		EventVersion: m.EventVersion,
		Status:       syncqueue.EventStatus(m.Status),
		LockedAt:     m.LockedAt,
		Attempts:     m.Attempts,
		NextRetryAt:  m.NextRetryAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.LockedBy != nil {
		event.LockedBy = *m.LockedBy
	}
	if m.LastError != nil {
		event.LastError = *m.LastError
	}
	return event
}

// StockChangeEventModelFromDomain converts a domain event to its model
func StockChangeEventModelFromDomain(e *syncqueue.StockChangeEvent) *StockChangeEventModel {
	m := &StockChangeEventModel{
		ProductID:    e.ProductID,
		Priority:     e.Priority.String(),
		Reason:       e.Reason.String(),
		EventVersion: e.EventVersion,
		Status:       e.Status.String(),
		LockedAt:     e.LockedAt,
		Attempts:     e.Attempts,
		NextRetryAt:  e.NextRetryAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.LockedBy != "" {
		lockedBy := e.LockedBy
		m.LockedBy = &lockedBy
	}
	if e.LastError != "" {
		lastError := e.LastError
		m.LastError = &lastError
	}
	return m
}
