package handlers

import (
	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/domain/ledger"
	"invcore/internal/domain/projection"
	"invcore/internal/infrastructure/http/v1/dto"
)

// ProjectionHandler serves the current-value projection endpoints.
type ProjectionHandler struct {
	*BaseHandler
	service *projection.Service
}

// NewProjectionHandler creates the projection handler.
func NewProjectionHandler(base *BaseHandler, service *projection.Service) *ProjectionHandler {
	return &ProjectionHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers projection endpoints on the group.
func (h *ProjectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:itemType/:fkId", h.Get)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/rebuild", h.Rebuild)
}

// List lists cached current values.
func (h *ProjectionHandler) List(c *gin.Context) {
	values, err := h.service.List(c.Request.Context(),
		h.ParseIntQuery(c, "limit", 100),
		h.ParseIntQuery(c, "offset", 0),
	)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, values)
}

// Get returns the cached row for one item.
func (h *ProjectionHandler) Get(c *gin.Context) {
	itemType := ledger.ItemType(c.Param("itemType"))
	if !itemType.Valid() {
		h.Error(c, apperror.NewValidation("item type must be MATERIAL or PRODUCT"))
		return
	}
	fkID, err := id.Parse(c.Param("fkId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid item id"))
		return
	}

	value, err := h.service.Get(c.Request.Context(), itemType, fkID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, value)
}

// Refresh recomputes one item's cached value, or every item when no body
// is supplied.
func (h *ProjectionHandler) Refresh(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		if err := h.service.RefreshAll(c.Request.Context()); err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, gin.H{"refreshed": "all"})
		return
	}

	var req dto.ItemRefRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item, err := req.ToItemRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Refresh(c.Request.Context(), item); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"refreshed": item.SKU})
}

// Rebuild drops and fully recomputes the projection.
func (h *ProjectionHandler) Rebuild(c *gin.Context) {
	if err := h.service.Rebuild(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"rebuilt": true})
}
