// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"larder/internal/domain/costing"
	"larder/internal/domain/fulfillment"
	"larder/internal/domain/ledger"
	"larder/internal/domain/purchasing"
	"larder/internal/domain/recipe"
	"larder/internal/infrastructure/http/v1/handlers"
	"larder/internal/infrastructure/http/v1/middleware"
	"larder/pkg/logger"
)

// RouterConfig holds the services the API is built from.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Version is reported by /health/info
	Version string

	// HealthChecks are pinged by /health/ready, keyed by dependency name
	HealthChecks map[string]handlers.Pinger

	Ledger      *ledger.Store
	Fulfillment *fulfillment.Service
	Recipes     *recipe.Service
	Purchasing  *purchasing.Service
	Processor   *purchasing.Processor
	Costing     *costing.Engine

	// Debug switches gin to debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!): Recovery is innermost so ErrorHandler renders its error.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	baseHandler := handlers.NewBaseHandler()

	api := router.Group("/api/v1")
	api.Use(middleware.Tenant()) // 1. Resolve tenant
	api.Use(middleware.Actor())  // 2. Acting user from the gateway
	{
		registerLocationRoutes(api,
			handlers.NewInventoryHandler(baseHandler, cfg.Ledger),
			handlers.NewFulfillmentHandler(baseHandler, cfg.Fulfillment),
			handlers.NewMenuHandler(baseHandler, cfg.Recipes, cfg.Costing),
		)
		registerPurchaseOrderRoutes(api, handlers.NewPurchasingHandler(baseHandler, cfg.Purchasing, cfg.Processor))
	}

	return router
}
