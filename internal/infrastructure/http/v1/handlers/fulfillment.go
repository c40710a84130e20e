package handlers

import (
	"github.com/gin-gonic/gin"

	"larder/internal/domain/fulfillment"
	"larder/internal/infrastructure/http/v1/dto"
)

// FulfillmentHandler deducts ingredients for completed orders.
type FulfillmentHandler struct {
	*BaseHandler
	service *fulfillment.Service
}

// NewFulfillmentHandler creates a fulfillment handler.
func NewFulfillmentHandler(base *BaseHandler, service *fulfillment.Service) *FulfillmentHandler {
	return &FulfillmentHandler{BaseHandler: base, service: service}
}

// Deduct handles POST /locations/:locationId/orders/:orderId/deductions.
// A replayed order answers 200 with the recorded movements, a new one 201.
func (h *FulfillmentHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.Deduct(c.Request.Context(), h.Param(c, "locationId"), h.Param(c, "orderId"), req.ToSaleLines())
	if err != nil {
		h.Error(c, err)
		return
	}
	if result.Replayed {
		h.OK(c, result)
		return
	}
	h.Created(c, result)
}
