// Package storetest is the conformance suite every repository.JobStore
// implementation runs from its own tests.
package storetest

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
)

// Factory returns a fresh, empty store
type Factory func(t *testing.T) repository.JobStore

// NewPendingJob builds a pending job with sensible defaults
func NewPendingJob(createdAt time.Time) *model.Job {
	speakers := 2
	return &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusPending,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
		Input: model.Input{
			FileName:    "meeting.wav",
			ContentType: "audio/wav",
			Size:        1024,
			StorageKey:  "uploads/meeting.wav",
		},
		Params: model.Params{
			ExpectedSpeakers: &speakers,
			ResponseFormat:   model.FormatSRT,
		},
		Progress: model.StageQueued,
	}
}

// Run executes the suite
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store repository.JobStore)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"ClaimEmpty", testClaimEmpty},
		{"ClaimFIFO", testClaimFIFO},
		{"ClaimSkipsDeleted", testClaimSkipsDeleted},
		{"ConcurrentClaimSingleJob", testConcurrentClaim},
		{"UpdateConditional", testUpdateConditional},
		{"UpdateMissing", testUpdateMissing},
		{"ConcurrentComplete", testConcurrentComplete},
		{"Requeue", testRequeue},
		{"Delete", testDelete},
		{"ListByStatus", testListByStatus},
		{"ListByStatusOldestFirst", testListByStatusOldestFirst},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testCreateAndGet(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, job.Input, got.Input)
	require.NotNil(t, got.Params.ExpectedSpeakers)
	assert.Equal(t, 2, *got.Params.ExpectedSpeakers)
	assert.Equal(t, model.FormatSRT, got.Params.ResponseFormat)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Result)
}

func testGetMissing(t *testing.T, store repository.JobStore) {
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.True(t, stderrors.Is(err, repository.ErrNotFound))
}

func testClaimEmpty(t *testing.T, store repository.JobStore) {
	job, err := store.Claim(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func testClaimFIFO(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	base := time.Now()
	first := NewPendingJob(base)
	second := NewPendingJob(base.Add(time.Second))
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	now := time.Now()
	got, err := store.Claim(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, now, *got.StartedAt, time.Millisecond)

	got, err = store.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	got, err = store.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func testClaimSkipsDeleted(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))
	require.NoError(t, store.Delete(ctx, job.ID))

	got, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testConcurrentClaim(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []string
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := store.Claim(ctx, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if got != nil {
				claimed = append(claimed, got.ID)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, []string{job.ID}, claimed)
}

func testUpdateConditional(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))

	_, err := store.Update(ctx, job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		return nil
	})
	var conflict *repository.StateConflictError
	require.True(t, stderrors.As(err, &conflict))
	assert.Equal(t, model.JobStatusPending, conflict.Current)
	assert.Equal(t, model.JobStatusProcessing, conflict.Expected)

	_, err = store.Claim(ctx, time.Now())
	require.NoError(t, err)

	completedAt := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := store.Update(ctx, job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &completedAt
		j.Result = &model.Result{
			Utterances:       []model.Utterance{{Speaker: "Speaker A", Start: 0, End: 1, Text: "hi", Confidence: 0.9}},
			AudioDuration:    1,
			SpeakersDetected: 1,
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, updated.Status)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "hi", got.Result.Utterances[0].Text)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
	require.NotNil(t, got.StartedAt, "claim timestamp survives later updates")
}

func testUpdateMissing(t *testing.T, store repository.JobStore) {
	_, err := store.Update(context.Background(), "missing", model.JobStatusProcessing, func(j *model.Job) error {
		return nil
	})
	assert.True(t, stderrors.Is(err, repository.ErrNotFound))
}

func testConcurrentComplete(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))
	_, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, job.ID, model.JobStatusProcessing, func(j *model.Job) error {
				j.Status = model.JobStatusCompleted
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			var conflict *repository.StateConflictError
			switch {
			case err == nil:
				successes++
			case stderrors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func testRequeue(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))

	claimed, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	_, err = store.Update(ctx, job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusPending
		j.StartedAt = nil
		j.Progress = model.StageQueued
		return nil
	})
	require.NoError(t, err)

	again, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)

	none, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testDelete(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	assert.True(t, stderrors.Is(store.Delete(ctx, "missing"), repository.ErrNotFound))

	job := NewPendingJob(time.Now())
	require.NoError(t, store.Create(ctx, job))
	_, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, job.ID))
	_, err = store.Get(ctx, job.ID)
	assert.True(t, stderrors.Is(err, repository.ErrNotFound))

	_, err = store.Update(ctx, job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		return nil
	})
	assert.True(t, stderrors.Is(err, repository.ErrNotFound), "deleted jobs are never resurrected")
	assert.True(t, stderrors.Is(store.Delete(ctx, job.ID), repository.ErrNotFound))
}

func testListByStatus(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, NewPendingJob(base.Add(time.Duration(i)*time.Second))))
	}
	_, err := store.Claim(ctx, time.Now())
	require.NoError(t, err)

	pending, err := store.ListByStatus(ctx, model.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	processing, err := store.ListByStatus(ctx, model.JobStatusProcessing, 10)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.NotNil(t, processing[0].StartedAt)

	limited, err := store.ListByStatus(ctx, model.JobStatusPending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testListByStatusOldestFirst(t *testing.T, store repository.JobStore) {
	ctx := context.Background()
	base := time.Now()
	newest := NewPendingJob(base.Add(2 * time.Second))
	oldest := NewPendingJob(base)
	middle := NewPendingJob(base.Add(time.Second))
	for _, job := range []*model.Job{newest, oldest, middle} {
		require.NoError(t, store.Create(ctx, job))
	}

	all, err := store.ListByStatus(ctx, model.JobStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{oldest.ID, middle.ID, newest.ID}, jobIDs(all))

	limited, err := store.ListByStatus(ctx, model.JobStatusPending, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{oldest.ID, middle.ID}, jobIDs(limited), "the limit keeps the oldest")
}

func jobIDs(jobs []*model.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

func testPing(t *testing.T, store repository.JobStore) {
	assert.NoError(t, store.Ping(context.Background()))
}
