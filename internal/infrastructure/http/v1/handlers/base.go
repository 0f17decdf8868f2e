// Package handlers implements the v1 HTTP endpoints.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/infrastructure/auth"
	"invcore/internal/infrastructure/http/v1/dto"
)

// BaseHandler carries the helpers every endpoint handler embeds: body and
// query binding, the response envelope, and error propagation to the
// rendering middleware.
type BaseHandler struct{}

// NewBaseHandler creates the shared base.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON decodes the body into obj. On failure it reports a VALIDATION
// error and returns false; the handler should return immediately.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery decodes query parameters into obj, reporting VALIDATION on
// failure like BindJSON.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error hands err to middleware.ErrorHandler, which owns the JSON shape.
// Handlers never write error bodies themselves.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery reads an integer query parameter, falling back to
// defaultVal when absent or malformed.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return n
}

// Actor is the authenticated user id, empty when the route is open.
func (h *BaseHandler) Actor(c *gin.Context) string {
	if p := auth.PrincipalFromContext(c.Request.Context()); p != nil {
		return p.UserID
	}
	return ""
}

// OK writes 200 with the success envelope.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

// Created writes 201 with the success envelope.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.OK(data))
}

// NoContent writes 204.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
