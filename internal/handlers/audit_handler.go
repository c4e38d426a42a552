package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// Get dispatches ?action=events|summary|timeline|search|export.
func (h *AuditHandler) Get(c *gin.Context) {
	switch strings.ToLower(c.DefaultQuery("action", "events")) {
	case "events":
		h.events(c)
	case "summary":
		summary, err := h.service.Summarize(queryInt(c, "days", 0))
		if err != nil {
			respondError(c, err, "Failed to summarize audit log")
			return
		}
		respondOK(c, summary)
	case "timeline":
		timeline, err := h.service.Timeline(queryInt(c, "days", 0))
		if err != nil {
			respondError(c, err, "Failed to build audit timeline")
			return
		}
		respondOK(c, timeline)
	case "search":
		events, err := h.service.SearchEvents(c.Query("q"), queryInt(c, "limit", 0))
		if err != nil {
			respondError(c, err, "Failed to search audit log")
			return
		}
		respondOK(c, events)
	case "export":
		h.export(c)
	default:
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Unknown action")
	}
}

func (h *AuditHandler) events(c *gin.Context) {
	filter, ok := auditFilter(c)
	if !ok {
		return
	}
	offset, limit := pagination(c, 50, 500)
	filter.Offset, filter.Limit = offset, limit

	events, total, err := h.service.ListEvents(filter)
	if err != nil {
		respondError(c, err, "Failed to load audit events")
		return
	}
	respondOK(c, Page{Items: events, Total: total, Offset: offset, Limit: limit})
}

func (h *AuditHandler) export(c *gin.Context) {
	filter, ok := auditFilter(c)
	if !ok {
		return
	}

	export, err := h.service.Export(c.Query("format"), filter)
	if err != nil {
		respondError(c, err, "Failed to export audit log")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}

func auditFilter(c *gin.Context) (models.AuditFilter, bool) {
	filter := models.AuditFilter{
		Action:    c.Query("filterAction"),
		Resource:  c.Query("resource"),
		UserID:    c.Query("userId"),
		UserEmail: c.Query("userEmail"),
		Query:     c.Query("q"),
	}

	if value := c.Query("severity"); value != "" {
		severity, ok := models.ParseSeverity(value)
		if !ok {
			respondFailure(c, http.StatusBadRequest, CodeValidation, "Unknown severity")
			return filter, false
		}
		filter.Severity = severity
	}

	if value := c.Query("success"); value != "" {
		success, err := strconv.ParseBool(value)
		if err != nil {
			respondFailure(c, http.StatusBadRequest, CodeValidation, "success must be a boolean")
			return filter, false
		}
		filter.Success = &success
	}

	for key, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		value := c.Query(key)
		if value == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			respondFailure(c, http.StatusBadRequest, CodeValidation, key+" must be an RFC3339 timestamp")
			return filter, false
		}
		*target = &parsed
	}

	return filter, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}
