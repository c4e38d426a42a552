package handlers

import (
	"context"
	"net/http"
	"time"

	"portfolio-admin-backend/pkg/cache"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewHealthHandler(db *gorm.DB, cacheService *cache.Cache) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheService}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "cache": "disabled"}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status["database"] = "unavailable"
		healthy = false
	}

	if h.cache.Enabled() {
		status["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			status["cache"] = "unavailable"
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, Envelope{
			Success: false,
			Data:    status,
			Error:   &APIError{Code: CodeInternal, Message: "Database unavailable"},
		})
		return
	}
	respondOK(c, status)
}
