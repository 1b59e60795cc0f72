package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordStockChangeRequest is the inbound stock observation payload.
// ObservationVersion is the source-of-truth timestamp of the observation,
// not the arrival time; omitted versions default to now.
type RecordStockChangeRequest struct {
	ProductID          string          `json:"product_id" binding:"required,uuid"`
	StoreName          string          `json:"store_name" binding:"required"`
	NewStockQuantity   decimal.Decimal `json:"new_stock_quantity"`
	ObservationVersion *time.Time      `json:"observation_version"`
	PriceImpact        bool            `json:"price_impact"`
}
