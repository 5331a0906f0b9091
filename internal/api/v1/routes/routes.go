package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/handlers"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/services"
)

// RegisterRoutes registers the job, health and metrics routes
func RegisterRoutes(router gin.IRouter, container *ServiceContainer) {
	healthHandler := handlers.NewHealthHandler(container.HealthService)
	router.GET("/health", healthHandler.Health)
	router.GET("/ollama/status", healthHandler.EnrichmentStatus)

	if container.Metrics != nil {
		router.GET("/metrics", gin.WrapH(container.Metrics))
	}

	jobHandler := handlers.NewJobHandler(container.JobService)
	jobs := router.Group("/transcribe")
	{
		jobs.POST("", jobHandler.Submit)
		jobs.GET("/:id", jobHandler.Get)
		jobs.GET("/:id/transcript", jobHandler.Transcript)
		jobs.DELETE("/:id", jobHandler.Delete)
	}
}

// ServiceContainer holds all services needed by handlers
type ServiceContainer struct {
	JobService    services.JobService
	HealthService services.HealthService
	Metrics       http.Handler
}
