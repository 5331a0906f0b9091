package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/formatter"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/testutil"
)

// fakeJobs serves fixed jobs by id
type fakeJobs struct {
	jobs    map[string]*model.Job
	deleted []string
	pingErr error
}

func newFakeJobs(jobs ...*model.Job) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*model.Job{}}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Submit(_ context.Context, upload orchestrator.Upload, params model.Params) (*model.Job, error) {
	job := testutil.NewPendingJob("new-job")
	job.Input.FileName = upload.FileName
	job.Params = params
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*model.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return job, nil
}

func (f *fakeJobs) Delete(_ context.Context, id string) error {
	if _, ok := f.jobs[id]; !ok {
		return apperrors.NotFound("job", id)
	}
	delete(f.jobs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeJobs) Ping(context.Context) error { return f.pingErr }

func TestJobService_SubmitJob(t *testing.T) {
	svc := NewJobService(newFakeJobs())

	resp, err := svc.SubmitJob(context.Background(), orchestrator.Upload{
		FileName: "standup.wav", ContentType: "audio/wav", Body: strings.NewReader("RIFF"),
	}, model.Params{ResponseFormat: model.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "new-job", resp.JobID)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.Equal(t, testutil.FixedTime, resp.CreatedAt)
}

func TestJobService_GetJob(t *testing.T) {
	completed := testutil.NewCompletedJob("done")
	completed.Params.ResponseFormat = model.FormatSRT
	svc := NewJobService(newFakeJobs(completed, testutil.NewPendingJob("waiting")))
	ctx := context.Background()

	t.Run("submitted format", func(t *testing.T) {
		resp, err := svc.GetJob(ctx, "done", "")
		require.NoError(t, err)
		assert.Equal(t, model.FormatSRT, resp.Format)
		assert.Equal(t, formatter.SRT(completed.Result.Utterances), resp.Result)
		assert.Equal(t, completed.CompletedAt, resp.CompletedAt)
	})

	t.Run("json keeps structure", func(t *testing.T) {
		resp, err := svc.GetJob(ctx, "done", model.FormatJSON)
		require.NoError(t, err)
		raw, ok := resp.Result.(json.RawMessage)
		require.True(t, ok)

		decoded, err := formatter.DecodeJSON(raw)
		require.NoError(t, err)
		assert.Equal(t, 2, decoded.SpeakersDetected)
		assert.Len(t, decoded.Utterances, 2)
	})

	t.Run("pending has no result", func(t *testing.T) {
		resp, err := svc.GetJob(ctx, "waiting", model.FormatText)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, resp.Status)
		assert.Nil(t, resp.Result)
	})

	t.Run("xlsx is download only", func(t *testing.T) {
		_, err := svc.GetJob(ctx, "done", formatter.FormatXLSX)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.GetJob(ctx, "nope", "")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})
}

func TestJobService_GetTranscript(t *testing.T) {
	completed := testutil.NewCompletedJob("done")
	svc := NewJobService(newFakeJobs(completed, testutil.NewPendingJob("waiting")))
	ctx := context.Background()

	doc, err := svc.GetTranscript(ctx, "done", model.FormatText)
	require.NoError(t, err)
	assert.Equal(t, formatter.ContentTypeText, doc.ContentType)
	assert.Equal(t, "standup.txt", doc.FileName)
	assert.Equal(t, formatter.Text(completed.Result.Utterances), string(doc.Body))

	doc, err = svc.GetTranscript(ctx, "done", formatter.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, formatter.ContentTypeXLSX, doc.ContentType)
	assert.Equal(t, "standup.xlsx", doc.FileName)
	assert.NotEmpty(t, doc.Body)

	_, err = svc.GetTranscript(ctx, "waiting", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestJobService_DeleteJob(t *testing.T) {
	jobs := newFakeJobs(testutil.NewPendingJob("job-1"))
	svc := NewJobService(jobs)

	resp, err := svc.DeleteJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Job job-1 deleted successfully", resp.Message)
	assert.Equal(t, []string{"job-1"}, jobs.deleted)

	_, err = svc.DeleteJob(context.Background(), "job-1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		upload string
		format model.ResponseFormat
		want   string
	}{
		{"standup.wav", model.FormatSRT, "standup.srt"},
		{"meeting.final.mp3", model.FormatText, "meeting.final.txt"},
		{"noext", model.FormatJSON, "noext.json"},
		{"", model.FormatVTT, "transcript.vtt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, documentName(tt.upload, tt.format), tt.upload)
	}
}
