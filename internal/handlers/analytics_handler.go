package handlers

import (
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
}

func NewAnalyticsHandler(svc *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc}
}

func (h *AnalyticsHandler) Report(c *gin.Context) {
	report, err := h.service.Report(queryInt(c, "days", 0))
	if err != nil {
		respondError(c, err, "Failed to build analytics report")
		return
	}
	respondOK(c, report)
}
