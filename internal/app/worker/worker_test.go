package worker

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/memory"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/storage"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/testutil"
)

type harness struct {
	svc         *orchestrator.Service
	uploadDir   string
	converter   *testutil.MockConverter
	diarizer    *testutil.MockDiarizer
	transcriber *testutil.MockTranscriber
	enricher    *testutil.MockEnricher
	worker      *Worker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	uploads, err := storage.NewLocalStore(uploadDir)
	require.NoError(t, err)

	svc := orchestrator.NewService(memory.New(), uploads, &testutil.StaticProber{Duration: 10},
		orchestrator.Config{
			Limits:  orchestrator.Limits{MaxFileSize: 1 << 20, MaxAudioDuration: 600},
			TempDir: t.TempDir(),
		}, zap.NewNop(), nil)

	h := &harness{
		svc:         svc,
		uploadDir:   uploadDir,
		converter:   &testutil.MockConverter{},
		diarizer:    &testutil.MockDiarizer{Segments: testutil.TwoSpeakerSegments()},
		transcriber: &testutil.MockTranscriber{Spans: testutil.TwoSpeakerSpans()},
		enricher: &testutil.MockEnricher{Result: &model.Enhancements{
			Summary: "greetings", ActionItems: "- none", Topics: "- hello",
		}},
	}
	models := &Models{
		Converter:   h.converter,
		Diarizer:    h.diarizer,
		Transcriber: h.transcriber,
		Enricher:    h.enricher,
	}
	require.NoError(t, models.Validate())
	h.worker = New(0, svc, models, Config{
		PollInterval:      10 * time.Millisecond,
		EnrichmentTimeout: 100 * time.Millisecond,
		TempDir:           t.TempDir(),
	}, zap.NewNop(), nil)
	return h
}

func (h *harness) submit(t *testing.T, params model.Params) *model.Job {
	t.Helper()
	body := "RIFF fake wav data"
	job, err := h.svc.Submit(context.Background(), orchestrator.Upload{
		FileName:    "standup.wav",
		ContentType: "audio/wav",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}, params)
	require.NoError(t, err)
	return job
}

func (h *harness) runOnce(t *testing.T) {
	t.Helper()
	processed, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
}

func (h *harness) get(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) uploadCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.uploadDir)
	require.NoError(t, err)
	return len(entries)
}

func TestWorker_CompletesJob(t *testing.T) {
	h := newHarness(t)
	two := 2
	submitted := h.submit(t, model.Params{ExpectedSpeakers: &two})

	h.runOnce(t)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.StageDone, job.Progress)
	require.NotNil(t, job.Result)
	assert.Nil(t, job.Error)
	assert.Equal(t, 2, job.Result.SpeakersDetected)
	assert.Equal(t, 10.0, job.Result.AudioDuration)
	require.Len(t, job.Result.Utterances, 2)
	assert.Equal(t, "Speaker A", job.Result.Utterances[0].Speaker)
	assert.Equal(t, "hello world", job.Result.Utterances[0].Text)
	assert.InDelta(t, 0.84, job.Result.Utterances[0].Confidence, 1e-9)
	assert.Equal(t, "Speaker B", job.Result.Utterances[1].Speaker)
	assert.Nil(t, job.Result.LLMEnhancements, "enrichment was not requested")

	require.NotNil(t, h.diarizer.LastHint())
	assert.Equal(t, 2, *h.diarizer.LastHint())
	assert.Len(t, h.converter.Calls(), 1)
	assert.Equal(t, "standup.wav", filepath.Base(h.converter.Calls()[0]))
	_, err := os.Stat(h.converter.Calls()[0])
	assert.True(t, os.IsNotExist(err), "job temp dir is removed")
	assert.Equal(t, 0, h.uploadCount(t), "upload is removed on completion")
}

func TestWorker_Enrichment(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{EnableLLMAnalysis: true})

	h.runOnce(t)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result.LLMEnhancements)
	assert.Equal(t, "greetings", job.Result.LLMEnhancements.Summary)
	assert.Equal(t, "Speaker A: hello world\nSpeaker B: hi", h.enricher.LastText())
}

func TestWorker_EnrichmentUnavailableStillCompletes(t *testing.T) {
	tests := []struct {
		name     string
		enricher *testutil.MockEnricher
	}{
		{"timeout", &testutil.MockEnricher{Block: true}},
		{"backend error", &testutil.MockEnricher{Err: apperrors.EnrichmentUnavailable(apperrors.New("connection refused"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.worker.models.Enricher = tt.enricher
			submitted := h.submit(t, model.Params{EnableLLMAnalysis: true})

			h.runOnce(t)

			job := h.get(t, submitted.ID)
			assert.Equal(t, model.JobStatusCompleted, job.Status)
			require.NotNil(t, job.Result)
			assert.Len(t, job.Result.Utterances, 2)
			assert.Nil(t, job.Result.LLMEnhancements)
			assert.Nil(t, job.Error)
		})
	}
}

func TestWorker_ModelFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(h *harness)
		wantMsg   string
	}{
		{
			name:      "conversion fails",
			configure: func(h *harness) { h.converter.Err = stderrors.New("invalid data found when processing input") },
			wantMsg:   "preprocessing failed",
		},
		{
			name:      "diarization fails",
			configure: func(h *harness) { h.diarizer.Err = stderrors.New("CUDA out of memory") },
			wantMsg:   "diarization failed",
		},
		{
			name:      "transcription fails",
			configure: func(h *harness) { h.transcriber.Err = stderrors.New("model crashed") },
			wantMsg:   "transcription failed",
		},
		{
			name:      "transcriber panics",
			configure: func(h *harness) { h.transcriber.Panic = "index out of range" },
			wantMsg:   "transcribing failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.configure(h)
			submitted := h.submit(t, model.Params{})

			h.runOnce(t)

			job := h.get(t, submitted.ID)
			assert.Equal(t, model.JobStatusFailed, job.Status)
			assert.Nil(t, job.Result)
			require.NotNil(t, job.Error)
			assert.Equal(t, apperrors.KindModelExecution, job.Error.Kind)
			assert.True(t, strings.HasPrefix(job.Error.Message, tt.wantMsg), job.Error.Message)
			assert.Equal(t, 1, h.uploadCount(t), "upload is kept on failure")
		})
	}
}

func TestWorker_SurvivesPanicAndProcessesNextJob(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Panic = "segfault in native code"
	first := h.submit(t, model.Params{})

	h.runOnce(t)
	assert.Equal(t, model.JobStatusFailed, h.get(t, first.ID).Status)

	h.diarizer.Panic = ""
	second := h.submit(t, model.Params{})
	h.runOnce(t)
	assert.Equal(t, model.JobStatusCompleted, h.get(t, second.ID).Status)
	assert.Equal(t, 2, h.diarizer.CallCount())
}

func TestWorker_SilentAudio(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Segments = nil
	h.transcriber.Spans = nil
	submitted := h.submit(t, model.Params{EnableLLMAnalysis: true})

	h.runOnce(t)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Empty(t, job.Result.Utterances)
	assert.Equal(t, 0, job.Result.SpeakersDetected)
	assert.Nil(t, job.Result.LLMEnhancements)
	assert.Equal(t, "", h.enricher.LastText(), "nothing to enrich")
}

func TestWorker_DeletedWhileProcessing(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{})

	deleting := &deletingDiarizer{MockDiarizer: h.diarizer, svc: h.svc, id: submitted.ID}
	h.worker.models.Diarizer = deleting

	h.runOnce(t)

	_, err := h.svc.Get(context.Background(), submitted.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

// deletingDiarizer deletes its job mid-pipeline
type deletingDiarizer struct {
	*testutil.MockDiarizer
	svc *orchestrator.Service
	id  string
}

func (d *deletingDiarizer) Diarize(ctx context.Context, a audio.Audio, hint *int) ([]model.SpeakerSegment, error) {
	if err := d.svc.Delete(ctx, d.id); err != nil {
		return nil, err
	}
	return d.MockDiarizer.Diarize(ctx, a, hint)
}

func TestWorker_StaleCompletionAfterRequeue(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{})

	reclaim := &reclaimingDiarizer{MockDiarizer: h.diarizer, svc: h.svc, id: submitted.ID}
	h.worker.models.Diarizer = reclaim

	h.runOnce(t)
	require.NoError(t, reclaim.err)
	require.NotNil(t, reclaim.current)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status, "the new holder still owns the job")
	assert.Equal(t, 2, job.Attempts)
	assert.Nil(t, job.Result, "the superseded worker's result is dropped")
	assert.Nil(t, job.Error)
	assert.Equal(t, 1, h.uploadCount(t))

	// the current holder finishes normally
	current, ok := reclaim.current.Claim()
	require.True(t, ok)
	result := &model.Result{Utterances: []model.Utterance{{Speaker: "Speaker A", Text: "current"}}}
	require.NoError(t, h.svc.Complete(context.Background(), current, result))

	job = h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "current", job.Result.Utterances[0].Text)
}

func TestWorker_StaleFailureAfterRequeue(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{})

	h.diarizer.Err = apperrors.ModelExecution(stderrors.New("CUDA out of memory"), "diarization")
	reclaim := &reclaimingDiarizer{MockDiarizer: h.diarizer, svc: h.svc, id: submitted.ID}
	h.worker.models.Diarizer = reclaim

	h.runOnce(t)
	require.NoError(t, reclaim.err)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Nil(t, job.Error, "the superseded worker's failure is dropped")
}

// reclaimingDiarizer simulates the reaper requeueing its job and another
// worker claiming it while this one is still busy
type reclaimingDiarizer struct {
	*testutil.MockDiarizer
	svc     *orchestrator.Service
	id      string
	current *model.Job
	err     error
}

func (d *reclaimingDiarizer) Diarize(ctx context.Context, a audio.Audio, hint *int) ([]model.SpeakerSegment, error) {
	d.err = d.reclaim(ctx)
	return d.MockDiarizer.Diarize(ctx, a, hint)
}

func (d *reclaimingDiarizer) reclaim(ctx context.Context) error {
	job, err := d.svc.Get(ctx, d.id)
	if err != nil {
		return err
	}
	claim, ok := job.Claim()
	if !ok {
		return stderrors.New("job not processing")
	}
	seen, _ := job.LastActive()
	requeued, err := d.svc.Requeue(ctx, claim, seen)
	if err != nil {
		return err
	}
	if !requeued {
		return stderrors.New("job not requeued")
	}
	d.current, err = d.svc.ClaimNext(ctx)
	if err == nil && d.current == nil {
		err = stderrors.New("job not claimed again")
	}
	return err
}

func TestWorker_HeartbeatsDuringLongStage(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{})

	h.worker.config.HeartbeatInterval = 5 * time.Millisecond
	slow := &heartbeatWaitingTranscriber{MockTranscriber: h.transcriber, svc: h.svc, id: submitted.ID}
	h.worker.models.Transcriber = slow

	h.runOnce(t)

	assert.True(t, slow.beat, "heartbeat refreshed while transcribing")
	assert.Equal(t, model.JobStatusCompleted, h.get(t, submitted.ID).Status)
}

// heartbeatWaitingTranscriber blocks until the job's heartbeat moves past
// the one written when transcription started
type heartbeatWaitingTranscriber struct {
	*testutil.MockTranscriber
	svc  *orchestrator.Service
	id   string
	beat bool
}

func (s *heartbeatWaitingTranscriber) Transcribe(ctx context.Context, a audio.Audio) ([]model.TranscriptSpan, error) {
	job, err := s.svc.Get(ctx, s.id)
	if err != nil {
		return nil, err
	}
	var start time.Time
	if job.HeartbeatAt != nil {
		start = *job.HeartbeatAt
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err = s.svc.Get(ctx, s.id)
		if err != nil {
			return nil, err
		}
		if job.HeartbeatAt != nil && job.HeartbeatAt.After(start) {
			s.beat = true
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	return s.MockTranscriber.Transcribe(ctx, a)
}

func TestWorker_RunOnceEmptyQueue(t *testing.T) {
	h := newHarness(t)
	processed, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWorker_ShutdownLeavesJobForReaper(t *testing.T) {
	h := newHarness(t)
	submitted := h.submit(t, model.Params{})

	ctx, cancel := context.WithCancel(context.Background())
	h.worker.models.Transcriber = &cancellingTranscriber{cancel: cancel}

	processed, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job := h.get(t, submitted.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, model.StageTranscribing, job.Progress)
}

type cancellingTranscriber struct {
	testutil.MockTranscriber
	cancel context.CancelFunc
}

func (c *cancellingTranscriber) Transcribe(ctx context.Context, _ audio.Audio) ([]model.TranscriptSpan, error) {
	c.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	submitted := h.submit(t, model.Params{})
	assert.Eventually(t, func() bool {
		return h.get(t, submitted.ID).Status == model.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPool_Run(t *testing.T) {
	h := newHarness(t)
	var acquired int32
	var diarizers []*testutil.MockDiarizer

	factory := func(context.Context) (*Models, error) {
		atomic.AddInt32(&acquired, 1)
		d := &testutil.MockDiarizer{Segments: testutil.TwoSpeakerSegments()}
		diarizers = append(diarizers, d)
		return &Models{
			Converter:   &testutil.MockConverter{},
			Diarizer:    d,
			Transcriber: &testutil.MockTranscriber{Spans: testutil.TwoSpeakerSpans()},
		}, nil
	}

	jobs := make([]*model.Job, 0, 4)
	for i := 0; i < 4; i++ {
		jobs = append(jobs, h.submit(t, model.Params{}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(3, h.svc, factory, Config{PollInterval: 10 * time.Millisecond, TempDir: t.TempDir()}, zap.NewNop(), nil)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, j := range jobs {
			if h.get(t, j.ID).Status != model.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(3), atomic.LoadInt32(&acquired), "one model handle per slot")
	for _, d := range diarizers {
		assert.True(t, d.Closed())
	}
}

func TestPool_FactoryError(t *testing.T) {
	h := newHarness(t)
	calls := 0
	var first *testutil.MockDiarizer
	factory := func(context.Context) (*Models, error) {
		calls++
		if calls == 2 {
			return nil, stderrors.New("gpu unavailable")
		}
		first = &testutil.MockDiarizer{}
		return &Models{Converter: &testutil.MockConverter{}, Diarizer: first, Transcriber: &testutil.MockTranscriber{}}, nil
	}

	err := NewPool(2, h.svc, factory, Config{}, zap.NewNop(), nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu unavailable")
	assert.True(t, first.Closed(), "acquired handles are released")
}

func TestModels_Validate(t *testing.T) {
	m := &Models{Converter: &testutil.MockConverter{}}
	err := m.Validate()
	require.Error(t, err)
	assert.Equal(t, map[string]string{"diarizer": "is required", "transcriber": "is required"}, apperrors.FieldsOf(err))

	m = &Models{Converter: &testutil.MockConverter{}, Diarizer: &testutil.MockDiarizer{}, Transcriber: &testutil.MockTranscriber{}}
	require.NoError(t, m.Validate())
	assert.Equal(t, "disabled", m.Enricher.Name())
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"meeting.mp3", "meeting.mp3"},
		{"../../etc/passwd", "passwd"},
		{"", "upload"},
		{"/", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, localName(tt.in), tt.in)
	}
}
