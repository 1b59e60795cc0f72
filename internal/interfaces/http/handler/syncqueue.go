package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/stocksync/backend/internal/application/syncqueue"
	"github.com/stocksync/backend/internal/interfaces/http/dto"
)

// SyncQueueHandler exposes the event queue over HTTP: observation intake
// for the source-of-truth system plus the operator surface (queue depth,
// failed-event inspection, manual retry).
type SyncQueueHandler struct {
	BaseHandler
	recorder *appsync.Recorder
	ops      *appsync.OpsService
}

// NewSyncQueueHandler creates a new sync queue handler
func NewSyncQueueHandler(recorder *appsync.Recorder, ops *appsync.OpsService) *SyncQueueHandler {
	return &SyncQueueHandler{recorder: recorder, ops: ops}
}

// RegisterRoutes registers sync queue routes
func (h *SyncQueueHandler) RegisterRoutes(rg *gin.RouterGroup) {
	queue := rg.Group("/queue")
	{
		queue.POST("/events", h.RecordEvent)
		queue.GET("/stats", h.GetStats)
		queue.GET("/failed", h.GetFailedEvents)
		queue.POST("/failed/:product_id/retry", h.RetryFailedEvent)
	}
}

// RecordEvent merges a stock observation into the product's outstanding
// event. Repeated calls for the same product collapse into one row, so the
// endpoint is safe to call on every stock mutation.
func (h *SyncQueueHandler) RecordEvent(c *gin.Context) {
	var req dto.RecordStockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	version := time.Now()
	if req.ObservationVersion != nil {
		version = *req.ObservationVersion
	}

	err = h.recorder.Record(
		c.Request.Context(),
		productID,
		req.StoreName,
		req.NewStockQuantity,
		version,
		req.PriceImpact,
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"product_id": productID, "queued": true})
}

// GetStats returns current queue depth by state.
func (h *SyncQueueHandler) GetStats(c *gin.Context) {
	stats, err := h.ops.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

// GetFailedEvents returns permanently failed events, newest first.
func (h *SyncQueueHandler) GetFailedEvents(c *gin.Context) {
	var filter appsync.FailedEventFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.ops.GetFailedEvents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Events, result.Total, result.Page, result.PageSize)
}

// RetryFailedEvent returns one failed event to the pending pool.
func (h *SyncQueueHandler) RetryFailedEvent(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	event, err := h.ops.RetryFailedEvent(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, event)
}
