package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gh "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/vipul43/analytics-bridge/internal/handlers"
	"github.com/vipul43/analytics-bridge/internal/middleware"
)

// NewRouter sets up the API routes
func NewRouter(analytics *handlers.AnalyticsHandler, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// Health check route
	router.GET("/health", handlers.HealthCheck)

	group := router.Group("/analytics")
	group.POST("/execute-job", analytics.ExecuteJob)
	group.POST("/execute-job/criteria", analytics.ExecuteJobWithCriteria)
	group.POST("/execute-job/by-view", analytics.ExecuteJobByView)
	group.GET("/runs", analytics.ListRuns)
	group.GET("/runs/:id", analytics.GetRun)

	return router
}

// WithCORS wraps h with the CORS policy for the given origins.
func WithCORS(h http.Handler, origins []string) http.Handler {
	return gh.CORS(
		gh.AllowedOrigins(origins),
		gh.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gh.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
		gh.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(h)
}
