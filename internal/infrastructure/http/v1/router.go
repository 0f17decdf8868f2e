// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"invcore/internal/domain/conversion"
	"invcore/internal/domain/ledger"
	"invcore/internal/domain/projection"
	"invcore/internal/domain/summary"
	"invcore/internal/infrastructure/http/v1/handlers"
	"invcore/internal/infrastructure/http/v1/middleware"
	"invcore/internal/infrastructure/metrics"
	"invcore/pkg/logger"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	// Pool is the database pool, used by readiness probes.
	Pool *pgxpool.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// Metrics registry; nil disables HTTP instrumentation and /metrics.
	Metrics *metrics.Metrics

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Version reported by /health/info.
	Version string

	LedgerService     *ledger.Service
	ConversionService *conversion.Service
	SummaryService    *summary.Service
	ProjectionService *projection.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// API v1
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Auth(cfg.JWTValidator))
	{
		base := handlers.NewBaseHandler()

		movements := handlers.NewMovementsHandler(base, cfg.LedgerService, cfg.Metrics)
		movements.RegisterRoutes(apiV1.Group("/movements"))

		conversions := handlers.NewConversionsHandler(base, cfg.ConversionService, cfg.Metrics)
		conversions.RegisterRoutes(apiV1.Group("/conversions"))

		templates := handlers.NewTemplatesHandler(base, cfg.ConversionService)
		templates.RegisterRoutes(apiV1.Group("/conversion-templates"))

		summaries := handlers.NewSummariesHandler(base, cfg.SummaryService, cfg.Metrics)
		summaries.RegisterRoutes(apiV1.Group("/summaries"))

		currentValues := handlers.NewProjectionHandler(base, cfg.ProjectionService)
		currentValues.RegisterRoutes(apiV1.Group("/current-values"))
	}

	return router
}
