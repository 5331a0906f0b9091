package services

import (
	"context"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
)

// JobService defines the interface for job operations
type JobService interface {
	SubmitJob(ctx context.Context, upload orchestrator.Upload, params model.Params) (*dto.SubmitResponse, error)
	GetJob(ctx context.Context, id string, format model.ResponseFormat) (*dto.JobResponse, error)
	GetTranscript(ctx context.Context, id string, format model.ResponseFormat) (*dto.Document, error)
	DeleteJob(ctx context.Context, id string) (*dto.DeleteResponse, error)
}

// HealthService defines the interface for liveness checks
type HealthService interface {
	Health(ctx context.Context) *dto.HealthResponse
	EnrichmentStatus(ctx context.Context) *dto.EnrichmentStatusResponse
}

// JobManager is the orchestrator surface the job service needs
type JobManager interface {
	Submit(ctx context.Context, upload orchestrator.Upload, params model.Params) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
