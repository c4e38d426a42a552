package handlers

import (
	"net/http"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"
	"portfolio-admin-backend/pkg/cache"

	"github.com/gin-gonic/gin"
)

type CacheHandler struct {
	cache *cache.Cache
	audit *service.AuditService
}

func NewCacheHandler(cacheService *cache.Cache, audit *service.AuditService) *CacheHandler {
	return &CacheHandler{cache: cacheService, audit: audit}
}

func (h *CacheHandler) Flush(c *gin.Context) {
	err := h.cache.FlushAll()
	h.audit.Track(middleware.Actor(c), "cache.flush", "cache", "", models.SeverityMedium, err, models.JSONMap{
		"enabled": h.cache.Enabled(),
	})
	if err != nil {
		respondError(c, err, "Failed to flush cache")
		return
	}
	respondMessage(c, http.StatusOK, gin.H{"enabled": h.cache.Enabled()}, "Cache flushed")
}
