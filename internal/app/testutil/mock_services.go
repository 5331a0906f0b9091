package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
)

// MockJobService is a mock implementation of services.JobService
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) SubmitJob(ctx context.Context, upload orchestrator.Upload, params model.Params) (*dto.SubmitResponse, error) {
	args := m.Called(ctx, upload, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.SubmitResponse), args.Error(1)
}

func (m *MockJobService) GetJob(ctx context.Context, id string, format model.ResponseFormat) (*dto.JobResponse, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobResponse), args.Error(1)
}

func (m *MockJobService) GetTranscript(ctx context.Context, id string, format model.ResponseFormat) (*dto.Document, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.Document), args.Error(1)
}

func (m *MockJobService) DeleteJob(ctx context.Context, id string) (*dto.DeleteResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DeleteResponse), args.Error(1)
}

// MockHealthService is a mock implementation of services.HealthService
type MockHealthService struct {
	mock.Mock
}

func (m *MockHealthService) Health(ctx context.Context) *dto.HealthResponse {
	return m.Called(ctx).Get(0).(*dto.HealthResponse)
}

func (m *MockHealthService) EnrichmentStatus(ctx context.Context) *dto.EnrichmentStatusResponse {
	return m.Called(ctx).Get(0).(*dto.EnrichmentStatusResponse)
}

// MockServices groups the HTTP layer mocks
type MockServices struct {
	JobService    *MockJobService
	HealthService *MockHealthService
}

// NewMockServices creates all service mocks
func NewMockServices() *MockServices {
	return &MockServices{
		JobService:    &MockJobService{},
		HealthService: &MockHealthService{},
	}
}

// AssertExpectations checks every mock
func (ms *MockServices) AssertExpectations(t mock.TestingT) {
	ms.JobService.AssertExpectations(t)
	ms.HealthService.AssertExpectations(t)
}
