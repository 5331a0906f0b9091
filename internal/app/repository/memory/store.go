// Package memory is an in-process job store for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
)

// JobStore keeps jobs in a map guarded by a mutex
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	queue []string
}

// New returns an empty store
func New() *JobStore {
	return &JobStore{jobs: make(map[string]*model.Job)}
}

func (s *JobStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	s.queue = append(s.queue, job.ID)
	return nil
}

func (s *JobStore) Claim(_ context.Context, now time.Time) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		job, ok := s.jobs[id]
		if !ok || job.Status != model.JobStatusPending {
			continue
		}
		started := now.UTC()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &started
		job.Attempts++
		return job.Clone(), nil
	}
	return nil, nil
}

func (s *JobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *JobStore) Update(_ context.Context, id string, from model.JobStatus, mutate repository.Mutation) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next, requeue, err := repository.ApplyMutation(job, from, mutate)
	if err != nil {
		return nil, err
	}
	s.jobs[id] = next
	if requeue {
		s.queue = append(s.queue, id)
	}
	return next.Clone(), nil
}

func (s *JobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// ListByStatus returns up to limit jobs, oldest first
func (s *JobStore) ListByStatus(_ context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	repository.SortByAge(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) Ping(context.Context) error { return nil }

func (s *JobStore) Close() error { return nil }
