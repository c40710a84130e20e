package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "larder/internal/core/context"
	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
)

const (
	// TenantHeader identifies the tenant of the request.
	TenantHeader = "X-Tenant-ID"
	// ActorHeader carries the id of the authenticated user, set by the gateway.
	ActorHeader = "X-Actor-ID"
)

// Tenant requires the tenant header and stores the tenant id in the request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			_ = c.Error(apperror.NewValidation("tenant is required").WithDetail("header", TenantHeader))
			c.Abort()
			return
		}

		ctx := tenant.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

// Actor stores the acting user, when the gateway sent one, in the request context.
// Operations that need an actor check for it themselves.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actorID != "" {
			ctx := c.Request.Context()
			ctx = appctx.WithActor(ctx, &appctx.Actor{ActorID: actorID, TenantID: tenant.GetTenantID(ctx)})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
