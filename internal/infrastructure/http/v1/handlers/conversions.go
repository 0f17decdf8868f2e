package handlers

import (
	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/domain/conversion"
	"invcore/internal/infrastructure/http/v1/dto"
	"invcore/internal/infrastructure/metrics"
)

// ConversionsHandler serves the conversion/production endpoints.
type ConversionsHandler struct {
	*BaseHandler
	service *conversion.Service
	metrics *metrics.Metrics
}

// NewConversionsHandler creates the conversions handler.
func NewConversionsHandler(base *BaseHandler, service *conversion.Service, m *metrics.Metrics) *ConversionsHandler {
	return &ConversionsHandler{BaseHandler: base, service: service, metrics: m}
}

// RegisterRoutes registers conversion endpoints on the group.
func (h *ConversionsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Execute)
	rg.POST("/bulk", h.ExecuteBulk)
	rg.POST("/requirements", h.CalculateRequirements)
	rg.GET("/:id", h.GetRecord)
}

// Execute runs one conversion atomically.
func (h *ConversionsHandler) Execute(c *gin.Context) {
	var req dto.ExecuteConversionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd, err := req.ToCommand(h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	record, err := h.service.Execute(c.Request.Context(), cmd)
	if err != nil {
		h.countExecution(err)
		h.Error(c, err)
		return
	}

	h.countExecution(nil)
	h.Created(c, record)
}

// ExecuteBulk runs a multi-template production plan atomically.
func (h *ConversionsHandler) ExecuteBulk(c *gin.Context) {
	var req dto.BulkProductionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd, err := req.ToCommand(h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	records, err := h.service.ExecuteBulk(c.Request.Context(), cmd)
	if err != nil {
		h.countExecution(err)
		h.Error(c, err)
		return
	}

	h.countExecution(nil)
	h.Created(c, records)
}

// CalculateRequirements reports feasibility of a plan without mutation.
func (h *ConversionsHandler) CalculateRequirements(c *gin.Context) {
	var req dto.RequirementsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	plans, err := req.ToPlanItems()
	if err != nil {
		h.Error(c, err)
		return
	}

	requirements, err := h.service.CalculateRequirements(c.Request.Context(), plans)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, requirements)
}

// GetRecord returns one conversion record.
func (h *ConversionsHandler) GetRecord(c *gin.Context) {
	recordID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid record id"))
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, record)
}

func (h *ConversionsHandler) countExecution(err error) {
	if h.metrics == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
		if apperror.IsInsufficientStock(err) {
			status = "insufficient_stock"
		}
	}
	h.metrics.ConversionsExecuted.WithLabelValues(status).Inc()
}

// TemplatesHandler serves read-only conversion template endpoints.
type TemplatesHandler struct {
	*BaseHandler
	service *conversion.Service
}

// NewTemplatesHandler creates the templates handler.
func NewTemplatesHandler(base *BaseHandler, service *conversion.Service) *TemplatesHandler {
	return &TemplatesHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers template endpoints on the group.
func (h *TemplatesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
}

// List lists templates.
func (h *TemplatesHandler) List(c *gin.Context) {
	filter := conversion.TemplateFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if status := c.Query("status"); status != "" {
		s := conversion.TemplateStatus(status)
		filter.Status = &s
	}

	templates, err := h.service.ListTemplates(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, templates)
}

// GetByID returns one template.
func (h *TemplatesHandler) GetByID(c *gin.Context) {
	templateID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid template id"))
		return
	}

	tmpl, err := h.service.GetTemplate(c.Request.Context(), templateID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, tmpl)
}
