package handlers

import (
	"net/http"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	service *service.MediaService
}

func NewMediaHandler(svc *service.MediaService) *MediaHandler {
	return &MediaHandler{service: svc}
}

func (h *MediaHandler) List(c *gin.Context) {
	offset, limit := pagination(c, 50, 200)
	assets, total, err := h.service.List(offset, limit)
	if err != nil {
		respondError(c, err, "Failed to list media")
		return
	}
	respondOK(c, Page{Items: assets, Total: total, Offset: offset, Limit: limit})
}

func (h *MediaHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "No file provided")
		return
	}

	asset, err := h.service.Upload(file, c.PostForm("alt"), middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to upload file")
		return
	}
	respondMessage(c, http.StatusCreated, asset, "File uploaded successfully")
}

func (h *MediaHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	asset, err := h.service.UpdateAlt(id, req.Alt, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to update media")
		return
	}
	respondOK(c, asset)
}

func (h *MediaHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(id, middleware.Actor(c)); err != nil {
		respondError(c, err, "Failed to delete media")
		return
	}
	respondMessage(c, http.StatusOK, nil, "Media deleted")
}
