package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/services"
)

// HealthHandler serves liveness endpoints
type HealthHandler struct {
	service services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health handles GET /health. A degraded service answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	response := h.service.Health(c.Request.Context())
	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// EnrichmentStatus handles GET /ollama/status
func (h *HealthHandler) EnrichmentStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.EnrichmentStatus(c.Request.Context()))
}
