package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	BaseHandler
	db *gorm.DB
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(db *gorm.DB) *SystemHandler {
	return &SystemHandler{db: db}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/ready", h.Ready)
}

// Health reports process liveness.
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{"status": "ok"})
}

// Ready reports whether the database is reachable.
func (h *SystemHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		h.Error(c, http.StatusServiceUnavailable, "ERR_INTERNAL", "database handle unavailable")
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		h.Error(c, http.StatusServiceUnavailable, "ERR_INTERNAL", "database unreachable")
		return
	}

	h.Success(c, gin.H{"status": "ready"})
}
