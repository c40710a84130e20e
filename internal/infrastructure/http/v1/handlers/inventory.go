package handlers

import (
	"github.com/gin-gonic/gin"

	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/http/v1/dto"
)

// InventoryHandler exposes item snapshots, history, stock takes and deactivation.
type InventoryHandler struct {
	*BaseHandler
	store *ledger.Store
}

// NewInventoryHandler creates an inventory handler.
func NewInventoryHandler(base *BaseHandler, store *ledger.Store) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, store: store}
}

// List handles GET /locations/:locationId/items.
func (h *InventoryHandler) List(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	items, err := h.store.Items(c.Request.Context(), scope, ledger.ItemFilter{
		IncludeInactive: c.Query("includeInactive") == "true",
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items))
}

// Ensure handles POST /locations/:locationId/items.
func (h *InventoryHandler) Ensure(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.EnsureItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item, created, err := h.store.EnsureItem(c.Request.Context(), scope, req.ToSpec())
	if err != nil {
		h.Error(c, err)
		return
	}
	resp := dto.EnsureItemResponse{Item: item, Created: created}
	if created {
		h.Created(c, resp)
		return
	}
	h.OK(c, resp)
}

// Get handles GET /locations/:locationId/items/:itemId.
func (h *InventoryHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	item, err := h.store.Snapshot(c.Request.Context(), scope, h.Param(c, "itemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}

// Movements handles GET /locations/:locationId/items/:itemId/movements.
func (h *InventoryHandler) Movements(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	movements, err := h.store.Movements(c.Request.Context(), scope, q.ToFilter(h.Param(c, "itemId")))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(movements))
}

// Adjust handles POST /locations/:locationId/items/:itemId/adjustments.
func (h *InventoryHandler) Adjust(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.AdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	movement, err := h.store.ApplyAdjustment(c.Request.Context(), scope, h.Param(c, "itemId"), req.CountedQuantity, ledger.MovementMeta{
		RefType: ledger.RefTypeStockTake,
		RefID:   req.Reference,
		Actor:   h.ActorID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, movement)
}

// Deactivate handles POST /locations/:locationId/items/:itemId/deactivate.
func (h *InventoryHandler) Deactivate(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	item, err := h.store.Deactivate(c.Request.Context(), scope, h.Param(c, "itemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}
