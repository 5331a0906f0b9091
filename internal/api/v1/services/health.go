package services

import (
	"context"
	"time"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
)

const (
	healthServiceName = "audio-diarizer"
	pingTimeout       = 2 * time.Second
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServiceImpl implements HealthService
type HealthServiceImpl struct {
	store       Pinger
	enricher    enrichment.Enricher
	environment string
}

// NewHealthService creates a health service. A nil enricher reports
// enrichment as disabled.
func NewHealthService(store Pinger, enricher enrichment.Enricher, environment string) HealthService {
	if enricher == nil {
		enricher = enrichment.Disabled{}
	}
	return &HealthServiceImpl{store: store, enricher: enricher, environment: environment}
}

// Health pings the store and probes the enrichment backend. The service is
// degraded only when the store is unreachable.
func (s *HealthServiceImpl) Health(ctx context.Context) *dto.HealthResponse {
	resp := &dto.HealthResponse{
		Status:            "healthy",
		Service:           healthServiceName,
		Environment:       s.environment,
		Store:             "ok",
		EnrichmentBackend: s.enricher.Name(),
		EnrichmentEnabled: s.enabled(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.store.Ping(pingCtx); err != nil {
		resp.Status = "degraded"
		resp.Store = "unavailable"
	}
	if resp.EnrichmentEnabled {
		resp.EnrichmentAvailable = s.enricher.Available(ctx)
	}
	return resp
}

// EnrichmentStatus probes the LLM backend without touching any job
func (s *HealthServiceImpl) EnrichmentStatus(ctx context.Context) *dto.EnrichmentStatusResponse {
	if !s.enabled() {
		return &dto.EnrichmentStatusResponse{
			Backend: s.enricher.Name(),
			Message: "LLM enrichment is disabled",
		}
	}

	available := s.enricher.Available(ctx)
	message := "LLM backend is available"
	if !available {
		message = "LLM backend is not responding"
	}
	return &dto.EnrichmentStatusResponse{
		Enabled:   true,
		Available: available,
		Backend:   s.enricher.Name(),
		Message:   message,
	}
}

func (s *HealthServiceImpl) enabled() bool {
	_, disabled := s.enricher.(enrichment.Disabled)
	return !disabled
}
