// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/http/v1/handlers"
	"stockval/internal/infrastructure/http/v1/middleware"
	"stockval/internal/infrastructure/storage/postgres"
	"stockval/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// APIKeyVerifier authenticates machine callers (optional)
	APIKeyVerifier middleware.APIKeyVerifier

	// ValuationService drives the report lifecycle
	ValuationService *valuation.Service

	// AuditService reads the report lifecycle audit trail
	AuditService *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator, cfg.APIKeyVerifier))

		registerReportRoutes(protected, cfg)
	}

	return router
}

// registerReportRoutes registers valuation report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	handler := handlers.NewReportsHandler(baseHandler, cfg.ValuationService, cfg.AuditService)

	reports := rg.Group("/valuation-reports")
	{
		reports.POST("", handler.Create)
		reports.GET("/deletable", handler.Deletable)
		reports.GET("/rows/:rowId/purchases", handler.RowPurchases)
		reports.GET("/:id", handler.Get)
		reports.GET("/:id/rows", handler.Rows)
		reports.POST("/:id/advance", handler.Advance)
		reports.POST("/:id/generate", handler.Generate)

		// Persisting and deleting change the carry-over chain permanently;
		// the audit trail exposes other users' actions.
		reports.POST("/:id/persist", middleware.RequireAdmin(), handler.Persist)
		reports.DELETE("/:id", middleware.RequireAdmin(), handler.Delete)
		reports.GET("/:id/audit", middleware.RequireAdmin(), handler.Audit)
	}
}
