package handlers

import (
	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/domain/summary"
	"invcore/internal/infrastructure/http/v1/dto"
	"invcore/internal/infrastructure/metrics"
)

// SummariesHandler serves the monthly summary endpoints.
type SummariesHandler struct {
	*BaseHandler
	service *summary.Service
	metrics *metrics.Metrics
}

// NewSummariesHandler creates the summaries handler.
func NewSummariesHandler(base *BaseHandler, service *summary.Service, m *metrics.Metrics) *SummariesHandler {
	return &SummariesHandler{BaseHandler: base, service: service, metrics: m}
}

// RegisterRoutes registers summary endpoints on the group.
func (h *SummariesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/generate", h.Generate)
	rg.POST("/generate-all", h.GenerateAll)
	rg.GET("", h.List)
}

// Generate computes and persists the summary for one (item, period).
func (h *SummariesHandler) Generate(c *gin.Context) {
	var req dto.GenerateSummaryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := req.ToItemRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), item, req.Period())
	if err != nil {
		h.countGeneration(err)
		h.Error(c, err)
		return
	}

	h.countGeneration(nil)
	h.Created(c, result)
}

// GenerateAll generates summaries for every ledger item up to the target
// period. Per-unit failures are reported in the result, not as errors.
func (h *SummariesHandler) GenerateAll(c *gin.Context) {
	var req dto.GenerateAllRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.GenerateAll(c.Request.Context(), req.Period())
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SummariesGenerated.WithLabelValues("generated").Add(float64(result.Generated))
		h.metrics.SummariesGenerated.WithLabelValues("skipped").Add(float64(result.Skipped))
		h.metrics.SummariesGenerated.WithLabelValues("failed").Add(float64(result.Failed))
	}
	h.OK(c, result)
}

// List lists summaries.
func (h *SummariesHandler) List(c *gin.Context) {
	var req dto.SummaryFilterRequest
	if !h.BindQuery(c, &req) {
		return
	}

	summaries, err := h.service.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summaries)
}

func (h *SummariesHandler) countGeneration(err error) {
	if h.metrics == nil {
		return
	}
	status := "generated"
	switch {
	case err == nil:
	case apperror.IsAlreadyExists(err):
		status = "skipped"
	case apperror.IsNoHistory(err):
		status = "no_history"
	default:
		status = "failed"
	}
	h.metrics.SummariesGenerated.WithLabelValues(status).Inc()
}
