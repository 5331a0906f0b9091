package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/formatter"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
)

// JobServiceImpl implements JobService
type JobServiceImpl struct {
	jobs JobManager
}

// NewJobService creates a new job service
func NewJobService(jobs JobManager) JobService {
	return &JobServiceImpl{jobs: jobs}
}

// SubmitJob stores the upload and enqueues it
func (s *JobServiceImpl) SubmitJob(ctx context.Context, upload orchestrator.Upload, params model.Params) (*dto.SubmitResponse, error) {
	job, err := s.jobs.Submit(ctx, upload, params)
	if err != nil {
		return nil, err
	}
	return &dto.SubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetJob returns the job with its result rendered in format
func (s *JobServiceImpl) GetJob(ctx context.Context, id string, format model.ResponseFormat) (*dto.JobResponse, error) {
	if format == formatter.FormatXLSX {
		return nil, apperrors.Validation("xlsx is only served as a transcript download",
			map[string]string{"format": "use /transcribe/" + id + "/transcript?format=xlsx"})
	}

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = job.Params.ResponseFormat
	}

	resp := &dto.JobResponse{
		JobID:       job.ID,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Progress:    job.Progress,
		Format:      format,
		Error:       job.Error,
	}
	if job.Status != model.JobStatusCompleted {
		return resp, nil
	}

	data, _, err := formatter.Render(format, job.Result)
	if err != nil {
		return nil, err
	}
	if format == model.FormatJSON {
		resp.Result = json.RawMessage(data)
	} else {
		resp.Result = string(data)
	}
	return resp, nil
}

// GetTranscript renders a completed job as a standalone document
func (s *JobServiceImpl) GetTranscript(ctx context.Context, id string, format model.ResponseFormat) (*dto.Document, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, apperrors.InvalidState(id, string(model.JobStatusCompleted), string(job.Status))
	}
	if format == "" {
		format = job.Params.ResponseFormat
	}

	data, contentType, err := formatter.Render(format, job.Result)
	if err != nil {
		return nil, err
	}
	return &dto.Document{
		Body:        data,
		ContentType: contentType,
		FileName:    documentName(job.Input.FileName, format),
	}, nil
}

// DeleteJob removes the job and its upload
func (s *JobServiceImpl) DeleteJob(ctx context.Context, id string) (*dto.DeleteResponse, error) {
	if err := s.jobs.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &dto.DeleteResponse{Message: fmt.Sprintf("Job %s deleted successfully", id)}, nil
}

func documentName(upload string, format model.ResponseFormat) string {
	base := strings.TrimSuffix(filepath.Base(upload), filepath.Ext(upload))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "transcript"
	}
	ext := string(format)
	if format == model.FormatText {
		ext = "txt"
	}
	return base + "." + ext
}
