package handlers

import (
	"net/http"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// CollectionHandler serves admin CRUD for one content table.
type CollectionHandler[T any, P interface {
	*T
	models.Entity
}] struct {
	service *service.CollectionService[T, P]
}

func NewCollectionHandler[T any, P interface {
	*T
	models.Entity
}](svc *service.CollectionService[T, P]) *CollectionHandler[T, P] {
	return &CollectionHandler[T, P]{service: svc}
}

// Register mounts the list, get, create, update and delete routes on group.
func (h *CollectionHandler[T, P]) Register(group *gin.RouterGroup) {
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("", h.Create)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

func (h *CollectionHandler[T, P]) List(c *gin.Context) {
	offset, limit := pagination(c, 100, 500)
	items, total, err := h.service.List(offset, limit)
	if err != nil {
		respondError(c, err, "Failed to list "+h.service.Resource())
		return
	}
	respondOK(c, Page{Items: items, Total: total, Offset: offset, Limit: limit})
}

func (h *CollectionHandler[T, P]) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(id)
	if err != nil {
		respondError(c, err, "Failed to load "+h.service.Resource())
		return
	}
	respondOK(c, item)
}

func (h *CollectionHandler[T, P]) Create(c *gin.Context) {
	item := new(T)
	if err := c.ShouldBindJSON(item); err != nil {
		respondBindError(c, err)
		return
	}

	created, err := h.service.Create(item, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to create "+h.service.Resource())
		return
	}
	respondMessage(c, http.StatusCreated, created, "Created successfully")
}

func (h *CollectionHandler[T, P]) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item := new(T)
	if err := c.ShouldBindJSON(item); err != nil {
		respondBindError(c, err)
		return
	}

	updated, err := h.service.Update(id, item, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to update "+h.service.Resource())
		return
	}
	respondMessage(c, http.StatusOK, updated, "Updated successfully")
}

func (h *CollectionHandler[T, P]) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(id, middleware.Actor(c)); err != nil {
		respondError(c, err, "Failed to delete "+h.service.Resource())
		return
	}
	respondMessage(c, http.StatusOK, nil, "Deleted successfully")
}

type SiteSectionHandler struct {
	service *service.SiteSectionService
}

func NewSiteSectionHandler(svc *service.SiteSectionService) *SiteSectionHandler {
	return &SiteSectionHandler{service: svc}
}

func (h *SiteSectionHandler) Get(c *gin.Context) {
	if section := c.Query("section"); section != "" {
		result, err := h.service.Get(section)
		if err != nil {
			respondError(c, err, "Failed to load site section")
			return
		}
		respondOK(c, result)
		return
	}

	sections, err := h.service.GetAll()
	if err != nil {
		respondError(c, err, "Failed to load site sections")
		return
	}
	respondOK(c, sections)
}

func (h *SiteSectionHandler) Save(c *gin.Context) {
	var req models.SiteSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "Missing required fields")
		return
	}

	section, err := h.service.Save(req, middleware.Actor(c))
	if err != nil {
		respondError(c, err, "Failed to save site section")
		return
	}
	respondMessage(c, http.StatusOK, section, "Content saved successfully")
}
