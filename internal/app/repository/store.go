package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

var (
	// ErrNotFound is returned for unknown or deleted job ids
	ErrNotFound = apperrors.NewKind(apperrors.KindNotFound, "job not found")
	// ErrConcurrentUpdate is returned when an update kept losing races
	ErrConcurrentUpdate = apperrors.New("job modified concurrently")
)

// MaxUpdateAttempts bounds the optimistic read-modify-write loop
const MaxUpdateAttempts = 16

// StateConflictError is returned when a conditional update finds the job in
// a different state than the caller expected.
type StateConflictError struct {
	ID       string
	Expected model.JobStatus
	Current  model.JobStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("job %s is %s, expected %s", e.ID, e.Current, e.Expected)
}

// Mutation edits a job inside a conditional update. Returning an error
// aborts the update.
type Mutation func(job *model.Job) error

// JobStore is the durable record store and work queue shared by every
// worker. All mutations of a single job are linearizable.
type JobStore interface {
	// Create persists a pending job and enqueues it in one atomic step.
	Create(ctx context.Context, job *model.Job) error
	// Claim moves the oldest pending job to processing and returns it, or
	// returns nil when the queue is empty. A job is never handed to two
	// callers.
	Claim(ctx context.Context, now time.Time) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies mutate only if the job is currently in state from.
	// Moving a job back to pending re-enqueues it.
	Update(ctx context.Context, id string, from model.JobStatus, mutate Mutation) (*model.Job, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	Ping(ctx context.Context) error
	Close() error
}

// ApplyMutation checks the expected state and runs mutate on a copy. The
// boolean reports whether the result must be re-enqueued.
func ApplyMutation(current *model.Job, from model.JobStatus, mutate Mutation) (*model.Job, bool, error) {
	if current.Status != from {
		return nil, false, &StateConflictError{ID: current.ID, Expected: from, Current: current.Status}
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, false, err
	}
	next.ID = current.ID
	requeue := next.Status == model.JobStatusPending && from != model.JobStatusPending
	return next, requeue, nil
}

// EncodeJob serializes a job document for storage
func EncodeJob(job *model.Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", apperrors.Wrap(err, "encode job")
	}
	return string(data), nil
}

// DecodeJob parses a stored job document
func DecodeJob(doc string) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, apperrors.Wrap(err, "decode job")
	}
	return &job, nil
}

// UnixNano converts an optional timestamp for storage; zero means unset
func UnixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// FromUnixNano is the inverse of UnixNano
func FromUnixNano(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}

// SortByAge orders jobs oldest first, the order the queue hands them out
func SortByAge(jobs []*model.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
