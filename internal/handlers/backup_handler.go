package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type BackupHandler struct {
	service *service.BackupService
}

func NewBackupHandler(service *service.BackupService) *BackupHandler {
	return &BackupHandler{service: service}
}

// Get dispatches ?action=history|statistics|recovery-points|schedule.
func (h *BackupHandler) Get(c *gin.Context) {
	switch strings.ToLower(c.DefaultQuery("action", "history")) {
	case "history":
		h.history(c)
	case "statistics":
		stats, err := h.service.Statistics()
		if err != nil {
			respondError(c, err, "Failed to load backup statistics")
			return
		}
		respondOK(c, stats)
	case "recovery-points":
		points, err := h.service.RecoveryPoints(c.Request.Context())
		if err != nil {
			respondError(c, err, "Failed to load recovery points")
			return
		}
		respondOK(c, points)
	case "schedule":
		schedule, err := h.service.GetSchedule()
		if err != nil {
			respondError(c, err, "Failed to load backup schedule")
			return
		}
		respondOK(c, schedule)
	default:
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Unknown action")
	}
}

func (h *BackupHandler) history(c *gin.Context) {
	offset, limit := pagination(c, 50, 200)
	backups, total, err := h.service.ListBackups(offset, limit, models.BackupType(c.Query("type")))
	if err != nil {
		respondError(c, err, "Failed to load backup history")
		return
	}
	respondOK(c, Page{Items: backups, Total: total, Offset: offset, Limit: limit})
}

// Post dispatches ?action=create|restore|schedule.
func (h *BackupHandler) Post(c *gin.Context) {
	switch strings.ToLower(c.Query("action")) {
	case "create":
		h.create(c)
	case "restore":
		h.restore(c)
	case "schedule":
		h.schedule(c)
	default:
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Unknown action")
	}
}

func (h *BackupHandler) create(c *gin.Context) {
	var req models.CreateBackupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	backup, err := h.service.CreateBackup(c.Request.Context(), req.Type, service.BackupOptions{
		Tables:            req.Tables,
		IncludeMedia:      req.IncludeMedia,
		IncludeSystemData: req.IncludeSystemData,
		Description:       req.Description,
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err, "Failed to create backup")
		return
	}
	respondMessage(c, http.StatusCreated, backup, "Backup created successfully")
}

func (h *BackupHandler) restore(c *gin.Context) {
	var req models.RestoreBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "backup_id is required")
		return
	}

	opts := service.RestoreOptions{
		CreatePreRestoreBackup: true,
		ValidateIntegrity:      true,
		Actor:                  middleware.Actor(c),
	}
	if req.CreatePreRestoreBackup != nil {
		opts.CreatePreRestoreBackup = *req.CreatePreRestoreBackup
	}
	if req.ValidateIntegrity != nil {
		opts.ValidateIntegrity = *req.ValidateIntegrity
	}

	result, err := h.service.RestoreFromBackup(c.Request.Context(), req.BackupID, opts)
	if err != nil {
		respondError(c, err, "Failed to restore backup")
		return
	}
	respondMessage(c, http.StatusOK, result, "Backup restored successfully")
}

func (h *BackupHandler) schedule(c *gin.Context) {
	var req models.BackupScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, err.Error())
		return
	}

	schedule, err := h.service.UpdateSchedule(req, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to update backup schedule")
		return
	}
	respondMessage(c, http.StatusOK, schedule, "Backup schedule updated")
}

func (h *BackupHandler) Download(c *gin.Context) {
	reader, backup, filename, err := h.service.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to download backup")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Content-Length", strconv.FormatInt(backup.Size, 10))
	c.Header("X-Backup-Checksum", backup.Checksum)
	c.Header("X-Backup-Type", string(backup.Type))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		c.Error(err)
	}
}

func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBackup(c.Request.Context(), c.Param("id"), middleware.Actor(c)); err != nil {
		respondError(c, err, "Failed to delete backup")
		return
	}
	respondMessage(c, http.StatusOK, nil, "Backup deleted")
}
