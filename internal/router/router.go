package router

import (
	"github.com/gin-gonic/gin"

	"bankparse/internal/config"
	"bankparse/internal/handler"
	"bankparse/internal/middleware"
)

// multipartOverhead leaves room for form boundaries and headers around the PDF.
const multipartOverhead = 1 << 20

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	statementH *handler.StatementHandler,
	resultH *handler.ResultHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")
	v1.GET("/supported-formats", statementH.SupportedFormats)
	v1.POST("/parse-statement", middleware.BodyLimit(cfg.Upload.MaxBytes()+multipartOverhead), statementH.Parse)

	results := v1.Group("/results")
	results.GET("", resultH.List)
	results.GET("/:id", resultH.GetByID)
	results.DELETE("/:id", resultH.Delete)
	results.GET("/:id/export", resultH.Export)
	results.GET("/:id/source", resultH.Source)
	results.POST("/:id/reparse", resultH.Reparse)

	return r
}
