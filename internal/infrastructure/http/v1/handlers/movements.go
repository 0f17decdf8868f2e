package handlers

import (
	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/domain/ledger"
	"invcore/internal/infrastructure/http/v1/dto"
	"invcore/internal/infrastructure/metrics"
)

// MovementsHandler serves the movement ledger endpoints.
type MovementsHandler struct {
	*BaseHandler
	service *ledger.Service
	metrics *metrics.Metrics
}

// NewMovementsHandler creates the movements handler.
func NewMovementsHandler(base *BaseHandler, service *ledger.Service, m *metrics.Metrics) *MovementsHandler {
	return &MovementsHandler{BaseHandler: base, service: service, metrics: m}
}

// RegisterRoutes registers movement endpoints on the group.
func (h *MovementsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Append)
	rg.POST("/batch", h.AppendBatch)
	rg.GET("", h.Query)
	rg.GET("/availability", h.Availability)
	rg.GET("/:id", h.GetByID)
	rg.DELETE("/:id", h.Delete)
}

// Append creates one movement entry.
func (h *MovementsHandler) Append(c *gin.Context) {
	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry, err := req.ToEntry(h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	entryID, err := h.service.Append(c.Request.Context(), entry)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.MovementsAppended.WithLabelValues(
			string(entry.MovementType), string(entry.Source),
		).Inc()
	}
	h.Created(c, gin.H{"id": entryID})
}

// AppendBatch creates several movement entries atomically.
func (h *MovementsHandler) AppendBatch(c *gin.Context) {
	var req dto.AppendBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	actor := h.Actor(c)
	entries := make([]*ledger.MovementEntry, 0, len(req.Entries))
	for i, entryReq := range req.Entries {
		entry, err := entryReq.ToEntry(actor)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				h.Error(c, appErr.WithDetail("index", i))
				return
			}
			h.Error(c, err)
			return
		}
		entries = append(entries, entry)
	}

	ids, err := h.service.AppendBatch(c.Request.Context(), entries)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.metrics != nil {
		for _, entry := range entries {
			h.metrics.MovementsAppended.WithLabelValues(
				string(entry.MovementType), string(entry.Source),
			).Inc()
		}
	}
	h.Created(c, gin.H{"ids": ids})
}

// Query lists movement entries.
func (h *MovementsHandler) Query(c *gin.Context) {
	var req dto.MovementFilterRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter, page, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Query(c.Request.Context(), filter, page)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:  result.Entries,
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	})
}

// GetByID returns one movement entry.
func (h *MovementsHandler) GetByID(c *gin.Context) {
	entryID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entry id"))
		return
	}

	entry, err := h.service.GetByID(c.Request.Context(), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// Delete soft-deletes one movement entry.
func (h *MovementsHandler) Delete(c *gin.Context) {
	entryID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entry id"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), entryID, h.Actor(c)); err != nil {
		h.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.EntriesDeleted.Inc()
	}
	h.NoContent(c)
}

// Availability returns the canonical available quantity for an item.
func (h *MovementsHandler) Availability(c *gin.Context) {
	var req dto.ItemRefRequest
	if !h.BindQuery(c, &req) {
		return
	}

	item, err := req.ToItemRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	available, err := h.service.Availability(c.Request.Context(), item)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AvailabilityResponse{Item: item, Available: available})
}
