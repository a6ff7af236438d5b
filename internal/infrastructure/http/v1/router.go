// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"docnum/internal/domain/numbering"
	"docnum/internal/domain/reservations"
	"docnum/internal/infrastructure/http/v1/handlers"
	"docnum/internal/infrastructure/http/v1/middleware"
	"docnum/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Allocator hands out document numbers; its registry and pool back the
	// pattern and recycle endpoints.
	Allocator *numbering.Allocator

	// Reservations is optional; nil leaves the reservation routes unregistered.
	Reservations *reservations.Service

	// HealthChecks run on /health/ready.
	HealthChecks map[string]handlers.HealthCheck

	// Registerer receives HTTP metrics; nil disables them.
	Registerer prometheus.Registerer

	// Metrics, if set, is served at /metrics.
	Metrics http.Handler

	// Debug switches Gin to debug mode.
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

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Registerer != nil {
		router.Use(middleware.HTTPMetrics(cfg.Registerer))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	registerPatternRoutes(v1, cfg)

	offices := v1.Group("/offices/:office")
	offices.Use(middleware.Office())
	registerNumberRoutes(offices, cfg)
	registerRecycleRoutes(offices, cfg)
	if cfg.Reservations != nil {
		registerReservationRoutes(offices, cfg)
	}

	return router
}

func registerPatternRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewPatternHandler(cfg.Allocator.Registry())
	rg.GET("/patterns", h.List)
	rg.GET("/patterns/:office", h.Get)
	rg.GET("/numbers/:number/office", h.Resolve)
}

func registerNumberRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewNumberHandler(cfg.Allocator)
	rg.POST("/numbers", h.Allocate)
	rg.POST("/numbers/release", h.Release)
	rg.POST("/numbers/audit", h.Audit)
	rg.GET("/numbers/:number/validate", h.Validate)
}

func registerRecycleRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewRecycleHandler(cfg.Allocator.Pool())
	rg.GET("/recycled", h.Get)
	rg.DELETE("/recycled", h.Purge)
}

func registerReservationRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewReservationHandler(cfg.Reservations)
	rg.POST("/reservations", h.Create)
	rg.GET("/reservations/:number", h.Get)
	rg.DELETE("/reservations/:number", h.Delete)
}
