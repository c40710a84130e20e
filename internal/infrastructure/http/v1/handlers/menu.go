package handlers

import (
	"github.com/gin-gonic/gin"

	"larder/internal/domain/costing"
	"larder/internal/domain/recipe"
	"larder/internal/infrastructure/http/v1/dto"
)

// MenuHandler manages menu items and serves their costs.
type MenuHandler struct {
	*BaseHandler
	recipes *recipe.Service
	costing *costing.Engine
}

// NewMenuHandler creates a menu handler.
func NewMenuHandler(base *BaseHandler, recipes *recipe.Service, engine *costing.Engine) *MenuHandler {
	return &MenuHandler{BaseHandler: base, recipes: recipes, costing: engine}
}

// Upsert handles PUT /locations/:locationId/menu-items/:menuItemId.
func (h *MenuHandler) Upsert(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.UpsertMenuItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	menu, err := h.recipes.Upsert(c.Request.Context(), scope, req.ToInput(h.Param(c, "menuItemId")))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, menu)
}

// Get handles GET /locations/:locationId/menu-items/:menuItemId.
func (h *MenuHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	menu, err := h.recipes.Get(c.Request.Context(), scope, h.Param(c, "menuItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, menu)
}

// Cost handles GET /locations/:locationId/menu-items/:menuItemId/cost.
func (h *MenuHandler) Cost(c *gin.Context) {
	cost, err := h.costing.GetMenuItemCost(c.Request.Context(), h.Param(c, "locationId"), h.Param(c, "menuItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cost)
}

// Reconcile handles POST /locations/:locationId/costs/reconcile.
func (h *MenuHandler) Reconcile(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	report, err := h.costing.Reconcile(c.Request.Context(), scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
