package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"larder/internal/domain/purchasing"
	"larder/internal/infrastructure/http/v1/dto"
)

// PurchasingHandler covers the purchase order lifecycle.
type PurchasingHandler struct {
	*BaseHandler
	service   *purchasing.Service
	processor *purchasing.Processor
}

// NewPurchasingHandler creates a purchasing handler.
func NewPurchasingHandler(base *BaseHandler, service *purchasing.Service, processor *purchasing.Processor) *PurchasingHandler {
	return &PurchasingHandler{BaseHandler: base, service: service, processor: processor}
}

// Create handles POST /purchase-orders.
func (h *PurchasingHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	po, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, po)
}

// Get handles GET /purchase-orders/:poId.
func (h *PurchasingHandler) Get(c *gin.Context) {
	po, err := h.service.Get(c.Request.Context(), h.Param(c, "poId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, po)
}

// Submit handles POST /purchase-orders/:poId/submit.
func (h *PurchasingHandler) Submit(c *gin.Context) {
	po, err := h.service.Submit(c.Request.Context(), h.Param(c, "poId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, po)
}

// Deliver handles POST /purchase-orders/:poId/deliver.
func (h *PurchasingHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	deliveredBy := strings.TrimSpace(req.DeliveredBy)
	if deliveredBy == "" {
		deliveredBy = h.ActorID(c)
	}

	result, err := h.processor.Deliver(c.Request.Context(), h.Param(c, "poId"), deliveredBy, req.Receipts)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
