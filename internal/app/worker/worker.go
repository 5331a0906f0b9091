// Package worker pulls jobs from the orchestrator and runs the
// diarize, transcribe, align and enrich pipeline one job at a time.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/alignment"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// JobService is the part of the orchestrator a worker drives
type JobService interface {
	ClaimNext(ctx context.Context) (*model.Job, error)
	SetProgress(ctx context.Context, claim model.Claim, stage model.Stage) error
	Heartbeat(ctx context.Context, claim model.Claim) error
	FetchUpload(ctx context.Context, job *model.Job, localPath string) error
	Complete(ctx context.Context, claim model.Claim, result *model.Result) error
	Fail(ctx context.Context, claim model.Claim, cause error) error
}

// Config tunes a worker
type Config struct {
	PollInterval      time.Duration
	MaxMergeGap       float64
	EnrichmentTimeout time.Duration
	TempDir           string
	// HeartbeatInterval is how often a busy worker reports in, so the
	// reaper can tell a long job from an abandoned one
	HeartbeatInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.EnrichmentTimeout <= 0 {
		c.EnrichmentTimeout = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Minute
	}
}

// Worker processes one job at a time with its own model handle
type Worker struct {
	id      int
	jobs    JobService
	models  *Models
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a worker. models must already be validated.
func New(id int, jobs JobService, models *Models, config Config, logger *zap.Logger, m *metrics.Metrics) *Worker {
	config.applyDefaults()
	return &Worker{
		id:      id,
		jobs:    jobs,
		models:  models,
		config:  config,
		logger:  logging.OrNop(logger).With(zap.Int("worker", id)),
		metrics: m,
	}
}

// Run polls for jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		zap.String("diarizer", w.models.Diarizer.Name()),
		zap.String("transcriber", w.models.Transcriber.Name()),
		zap.String("enricher", w.models.Enricher.Name()))
	defer w.logger.Info("worker stopped")

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("claim failed", zap.Error(err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.config.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

// run carries the state of one job through the pipeline
type run struct {
	job    *model.Job
	claim  model.Claim
	stage  model.Stage
	logger *zap.Logger
}

func (w *Worker) process(ctx context.Context, job *model.Job) {
	claim, ok := job.Claim()
	if !ok {
		w.logger.Error("claimed job is not processing", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		return
	}
	r := &run{job: job, claim: claim, stage: model.StageQueued, logger: logging.WithJob(w.logger, job.ID)}

	// terminal transitions must land even while shutting down
	finishCtx := context.WithoutCancel(ctx)

	stopHeartbeat := w.heartbeat(ctx, r)
	defer stopHeartbeat()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("pipeline panicked",
				zap.Any("panic", p),
				zap.String("stage", string(r.stage)),
				zap.ByteString("stack", debug.Stack()))
			cause := apperrors.ModelExecution(fmt.Errorf("panic: %v", p), string(r.stage))
			if err := w.jobs.Fail(finishCtx, claim, cause); err != nil {
				r.logger.Error("failed to record panic", zap.Error(err))
			}
		}
	}()

	result, err := w.pipeline(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			// left in processing for the reaper to requeue
			r.logger.Warn("job interrupted by shutdown", zap.String("stage", string(r.stage)))
			return
		}
		if err := w.jobs.Fail(finishCtx, claim, err); err != nil {
			r.logger.Error("failed to record job failure", zap.Error(err))
		}
		return
	}

	if err := w.jobs.Complete(finishCtx, claim, result); err != nil {
		r.logger.Error("failed to record job result", zap.Error(err))
	}
}

// heartbeat reports in every HeartbeatInterval until the returned stop
// function is called
func (w *Worker) heartbeat(ctx context.Context, r *run) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.jobs.Heartbeat(ctx, r.claim); err != nil {
					r.logger.Debug("heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) advance(ctx context.Context, r *run, stage model.Stage) {
	r.stage = stage
	if err := w.jobs.SetProgress(ctx, r.claim, stage); err != nil {
		r.logger.Debug("progress update failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func (w *Worker) pipeline(ctx context.Context, r *run) (*model.Result, error) {
	job := r.job

	w.advance(ctx, r, model.StagePreprocessing)
	tempDir, err := os.MkdirTemp(w.config.TempDir, "diarizer-"+job.ID+"-")
	if err != nil {
		return nil, apperrors.Wrap(err, "create job temp dir")
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, localName(job.Input.FileName))
	if err := w.jobs.FetchUpload(ctx, job, localPath); err != nil {
		return nil, apperrors.Wrap(err, "fetch upload")
	}
	converted, err := w.models.Converter.ConvertTo16kHzWav(ctx, localPath)
	if err != nil {
		return nil, apperrors.ModelExecution(err, "preprocessing")
	}
	input := audio.Audio{Path: converted, Duration: job.Input.AudioDuration}

	w.advance(ctx, r, model.StageDiarizing)
	started := time.Now()
	segments, err := w.models.Diarizer.Diarize(ctx, input, job.Params.ExpectedSpeakers)
	if err != nil {
		w.metrics.RecordFailure(w.models.Diarizer.Name(), string(apperrors.KindModelExecution))
		return nil, apperrors.ModelExecution(err, "diarization")
	}
	w.metrics.RecordSuccess(w.models.Diarizer.Name(), time.Since(started))

	w.advance(ctx, r, model.StageTranscribing)
	started = time.Now()
	spans, err := w.models.Transcriber.Transcribe(ctx, input)
	if err != nil {
		w.metrics.RecordFailure(w.models.Transcriber.Name(), string(apperrors.KindModelExecution))
		return nil, apperrors.ModelExecution(err, "transcription")
	}
	w.metrics.RecordSuccess(w.models.Transcriber.Name(), time.Since(started))

	w.advance(ctx, r, model.StageAligning)
	utterances := alignment.Align(segments, spans, alignment.Options{
		AudioDuration: job.Input.AudioDuration,
		MaxMergeGap:   w.config.MaxMergeGap,
	})
	result := &model.Result{
		Utterances:       utterances,
		AudioDuration:    job.Input.AudioDuration,
		SpeakersDetected: alignment.SpeakerCount(utterances),
	}
	r.logger.Info("alignment finished",
		zap.Int("segments", len(segments)),
		zap.Int("spans", len(spans)),
		zap.Int("utterances", len(utterances)),
		zap.Int("speakers", result.SpeakersDetected))

	if job.Params.EnableLLMAnalysis && len(utterances) > 0 {
		w.advance(ctx, r, model.StageEnriching)
		result.LLMEnhancements = w.enrich(ctx, r, utterances)
	}

	w.advance(ctx, r, model.StageFinalizing)
	return result, nil
}

// enrich never fails the job; it returns nil when the backend is unavailable
func (w *Worker) enrich(ctx context.Context, r *run, utterances []model.Utterance) *model.Enhancements {
	ctx, cancel := context.WithTimeout(ctx, w.config.EnrichmentTimeout)
	defer cancel()

	started := time.Now()
	enhancements, err := w.models.Enricher.Enrich(ctx, enrichment.FormatTranscript(utterances))
	if err != nil {
		w.metrics.EnrichmentUnavailable()
		w.metrics.RecordFailure(w.models.Enricher.Name(), string(apperrors.KindOf(err)))
		r.logger.Warn("enrichment unavailable, continuing without it", zap.Error(err))
		return nil
	}
	w.metrics.RecordSuccess(w.models.Enricher.Name(), time.Since(started))
	return enhancements
}

func localName(fileName string) string {
	base := filepath.Base(fileName)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "upload"
	}
	return base
}
