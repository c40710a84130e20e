// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"larder/internal/core/apperror"
	appctx "larder/internal/core/context"
	"larder/internal/core/tenant"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates the JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the gin context and aborts. middleware.ErrorHandler renders it.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Scope builds the (tenant, location) scope of the request from the :locationId param.
func (h *BaseHandler) Scope(c *gin.Context) (tenant.Scope, bool) {
	scope, err := tenant.ScopeFromContext(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("tenant is required"))
		return tenant.Scope{}, false
	}
	if scope.LocationID == "" {
		h.Error(c, apperror.NewMissingLocation("request", c.Request.URL.Path))
		return tenant.Scope{}, false
	}
	return scope, true
}

// Param returns a trimmed path parameter.
func (h *BaseHandler) Param(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}

// ActorID returns the acting user of the request or empty string.
func (h *BaseHandler) ActorID(c *gin.Context) string {
	return appctx.GetActorID(c.Request.Context())
}

// OK sends 200 with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends 201 with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}
