package v1

import (
	"github.com/gin-gonic/gin"

	"larder/internal/infrastructure/http/v1/handlers"
)

// registerLocationRoutes registers every route keyed by a branch under /locations/:locationId.
func registerLocationRoutes(rg *gin.RouterGroup, inventory *handlers.InventoryHandler, fulfillment *handlers.FulfillmentHandler, menu *handlers.MenuHandler) {
	location := rg.Group("/locations/:locationId")

	items := location.Group("/items")
	{
		items.GET("", inventory.List)
		items.POST("", inventory.Ensure)
		items.GET("/:itemId", inventory.Get)
		items.GET("/:itemId/movements", inventory.Movements)
		items.POST("/:itemId/adjustments", inventory.Adjust)
		items.POST("/:itemId/deactivate", inventory.Deactivate)
	}

	location.POST("/orders/:orderId/deductions", fulfillment.Deduct)

	menuItems := location.Group("/menu-items")
	{
		menuItems.PUT("/:menuItemId", menu.Upsert)
		menuItems.GET("/:menuItemId", menu.Get)
		menuItems.GET("/:menuItemId/cost", menu.Cost)
	}
	location.POST("/costs/reconcile", menu.Reconcile)
}

// registerPurchaseOrderRoutes registers the purchase order lifecycle under /purchase-orders.
func registerPurchaseOrderRoutes(rg *gin.RouterGroup, purchasing *handlers.PurchasingHandler) {
	po := rg.Group("/purchase-orders")
	{
		po.POST("", purchasing.Create)
		po.GET("/:poId", purchasing.Get)
		po.POST("/:poId/submit", purchasing.Submit)
		po.POST("/:poId/deliver", purchasing.Deliver)
	}
}
