package handlers

import (
	"net/http"
	"strconv"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type VersionHandler struct {
	service *service.VersionService
}

func NewVersionHandler(svc *service.VersionService) *VersionHandler {
	return &VersionHandler{service: svc}
}

func (h *VersionHandler) target(c *gin.Context) (models.ContentType, uint, bool) {
	contentType, ok := models.ParseContentType(c.Param("type"))
	if !ok {
		respondError(c, service.ErrInvalidContentType, "")
		return "", 0, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return "", 0, false
	}
	return contentType, id, true
}

func (h *VersionHandler) History(c *gin.Context) {
	contentType, id, ok := h.target(c)
	if !ok {
		return
	}
	versions, err := h.service.History(contentType, id)
	if err != nil {
		respondError(c, err, "Failed to load version history")
		return
	}
	respondOK(c, versions)
}

func (h *VersionHandler) Get(c *gin.Context) {
	contentType, id, ok := h.target(c)
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("version"))
	if err != nil || number < 1 {
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid version")
		return
	}

	version, err := h.service.GetVersion(contentType, id, number)
	if err != nil {
		respondError(c, err, "Failed to load version")
		return
	}
	respondOK(c, version)
}

func (h *VersionHandler) Compare(c *gin.Context) {
	contentType, id, ok := h.target(c)
	if !ok {
		return
	}
	from, fromErr := strconv.Atoi(c.Query("from"))
	to, toErr := strconv.Atoi(c.Query("to"))
	if fromErr != nil || toErr != nil || from < 1 || to < 1 {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "from and to versions are required")
		return
	}

	comparison, err := h.service.Compare(contentType, id, from, to)
	if err != nil {
		respondError(c, err, "Failed to compare versions")
		return
	}
	respondOK(c, comparison)
}

func (h *VersionHandler) Restore(c *gin.Context) {
	contentType, id, ok := h.target(c)
	if !ok {
		return
	}
	var req models.RestoreVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "version is required")
		return
	}

	restored, err := h.service.RestoreVersion(contentType, id, req.Version, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to restore version")
		return
	}
	respondMessage(c, http.StatusOK, restored, "Version "+strconv.Itoa(req.Version)+" restored")
}
