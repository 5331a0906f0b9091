// Package orchestrator owns the job lifecycle: intake, claiming and the
// conditional terminal transitions. Every state change goes through the
// job store's conditional update so concurrent workers, reapers and
// deletes never overwrite each other.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/storage"
)

const megabyte = 1024 * 1024

// Limits bound what intake accepts
type Limits struct {
	MaxFileSize      int64   `yaml:"max_file_size"`
	MaxAudioDuration float64 `yaml:"max_audio_duration"`
}

// DevelopmentLimits are the defaults outside production
func DevelopmentLimits() Limits {
	return Limits{MaxFileSize: 50 * megabyte, MaxAudioDuration: 1800}
}

// ProductionLimits allow larger uploads
func ProductionLimits() Limits {
	return Limits{MaxFileSize: 100 * megabyte, MaxAudioDuration: 7200}
}

// Upload is the raw file handed to Submit
type Upload struct {
	FileName    string
	ContentType string
	// Size as declared by the client; -1 when unknown
	Size int64
	Body io.Reader
}

// Config for the orchestrator
type Config struct {
	Limits Limits
	// TempDir spools uploads while they are probed; empty uses os.TempDir
	TempDir string
}

// errStaleClaim aborts an update made under a claim that no longer owns the
// job, or a supervisor update on a job that reported in since it was listed
var errStaleClaim = apperrors.New("claim changed since observed")

// Service implements the job state machine on top of a JobStore
type Service struct {
	store   repository.JobStore
	uploads storage.Store
	prober  audio.Prober
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates an orchestrator. logger and m may be nil.
func NewService(
	store repository.JobStore,
	uploads storage.Store,
	prober audio.Prober,
	cfg Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DevelopmentLimits()
	}
	return &Service{
		store:   store,
		uploads: uploads,
		prober:  prober,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates the upload, stores it and enqueues a pending job. On any
// failure after the upload was stored, the stored copy is removed.
func (s *Service) Submit(ctx context.Context, upload Upload, params model.Params) (*model.Job, error) {
	if params.ResponseFormat == "" {
		params.ResponseFormat = model.FormatJSON
	}
	if err := validateStruct(params); err != nil {
		return nil, err
	}
	if !audio.IsAudioContentType(upload.ContentType) {
		return nil, apperrors.Validation(apperrors.ErrUnsupportedMedia.Message(),
			map[string]string{"file": fmt.Sprintf("content type %q is not audio/*", upload.ContentType)})
	}
	if upload.Size > s.cfg.Limits.MaxFileSize {
		return nil, s.tooLarge()
	}

	spooled, size, err := s.spool(upload.Body)
	if err != nil {
		return nil, err
	}
	defer os.Remove(spooled)

	duration, err := s.probeDuration(ctx, spooled)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := storage.UploadKey(id, upload.FileName)
	if err := s.saveUpload(ctx, spooled, key, size, upload.ContentType); err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		CreatedAt: s.now(),
		Input: model.Input{
			FileName:      upload.FileName,
			ContentType:   upload.ContentType,
			Size:          size,
			StorageKey:    key,
			AudioDuration: duration,
		},
		Params:   params,
		Progress: model.StageQueued,
	}
	if err := s.store.Create(ctx, job); err != nil {
		s.removeUpload(ctx, key)
		return nil, apperrors.Wrap(err, "create job")
	}

	s.metrics.JobSubmitted()
	logging.WithJob(s.logger, id).Info("job submitted",
		zap.String("file_name", upload.FileName),
		zap.Int64("size", size),
		zap.Float64("audio_duration", duration))
	return job, nil
}

func (s *Service) tooLarge() error {
	return apperrors.Validation(apperrors.ErrFileTooLarge.Message(),
		map[string]string{"file": fmt.Sprintf("must be at most %d bytes", s.cfg.Limits.MaxFileSize)})
}

// spool copies the body to a temp file, stopping one byte past the limit
func (s *Service) spool(body io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "upload-*")
	if err != nil {
		return "", 0, apperrors.Wrap(err, "create temp file")
	}
	n, err := io.Copy(f, io.LimitReader(body, s.cfg.Limits.MaxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, apperrors.Wrap(err, "read upload")
	}
	if n > s.cfg.Limits.MaxFileSize {
		os.Remove(f.Name())
		return "", 0, s.tooLarge()
	}
	if n == 0 {
		os.Remove(f.Name())
		return "", 0, apperrors.Validation("empty upload", map[string]string{"file": "is required"})
	}
	return f.Name(), n, nil
}

func (s *Service) probeDuration(ctx context.Context, path string) (float64, error) {
	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindValidation) {
			return 0, apperrors.Validation(apperrors.MessageOf(err),
				map[string]string{"file": "contains no audio stream"})
		}
		return 0, apperrors.Validation("unreadable audio",
			map[string]string{"file": "could not be decoded as audio"})
	}
	duration := probe.Format.Duration
	if duration > s.cfg.Limits.MaxAudioDuration {
		return 0, apperrors.Validation(apperrors.ErrAudioTooLong.Message(),
			map[string]string{"file": fmt.Sprintf("audio must be at most %.0f seconds", s.cfg.Limits.MaxAudioDuration)})
	}
	return duration, nil
}

func (s *Service) saveUpload(ctx context.Context, path, key string, size int64, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(err, "reopen upload")
	}
	defer f.Close()
	if err := s.uploads.Save(ctx, key, f, size, contentType); err != nil {
		// a partial object may exist
		s.removeUpload(ctx, key)
		return apperrors.Wrap(err, "store upload")
	}
	return nil
}

func (s *Service) removeUpload(ctx context.Context, key string) {
	if err := s.uploads.Remove(ctx, key); err != nil {
		s.logger.Warn("failed to remove upload", zap.String("key", key), zap.Error(err))
	}
}

// ClaimNext moves the oldest pending job to processing. It returns nil
// when the queue is empty.
func (s *Service) ClaimNext(ctx context.Context) (*model.Job, error) {
	job, err := s.store.Claim(ctx, s.now())
	if err != nil {
		return nil, apperrors.Wrap(err, "claim next job")
	}
	if job != nil {
		logging.WithJob(s.logger, job.ID).Info("job claimed", zap.Int("attempt", job.Attempts))
	}
	return job, nil
}

// Complete stores the result of a processing job under claim. A claim
// that was superseded by a requeue, or a job deleted meanwhile, makes it a
// logged no-op; completing a job in any other state is an invalid-state
// error.
func (s *Service) Complete(ctx context.Context, claim model.Claim, result *model.Result) error {
	completedAt := s.now()
	job, err := s.store.Update(ctx, claim.JobID, model.JobStatusProcessing, func(j *model.Job) error {
		if !claim.Holds(j) {
			return errStaleClaim
		}
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &completedAt
		j.Result = result
		j.Error = nil
		j.Progress = model.StageDone
		return nil
	})
	if err != nil {
		return s.claimError(ctx, claim, "complete", err)
	}

	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = completedAt.Sub(*job.StartedAt)
	}
	s.metrics.JobCompleted(elapsed, job.Input.AudioDuration)
	s.removeUpload(ctx, job.Input.StorageKey)
	logging.WithJob(s.logger, claim.JobID).Info("job completed", zap.Duration("elapsed", elapsed))
	return nil
}

// Fail records cause on a processing job under claim. Failing an already
// failed job, a deleted job or a superseded claim is a no-op.
func (s *Service) Fail(ctx context.Context, claim model.Claim, cause error) error {
	kind := apperrors.KindOf(cause)
	failedAt := s.now()
	_, err := s.store.Update(ctx, claim.JobID, model.JobStatusProcessing, func(j *model.Job) error {
		if !claim.Holds(j) {
			return errStaleClaim
		}
		markFailed(j, kind, cause, failedAt)
		return nil
	})
	if err != nil {
		var conflict *repository.StateConflictError
		if stderrors.As(err, &conflict) && conflict.Current == model.JobStatusFailed {
			return nil
		}
		return s.claimError(ctx, claim, "fail", err)
	}

	s.metrics.JobFailed(string(kind))
	logging.WithJob(s.logger, claim.JobID).Warn("job failed",
		zap.String("error_kind", string(kind)), zap.Error(cause))
	return nil
}

// claimError maps store errors from a terminal transition. Writes from a
// claim that no longer owns the job are dropped.
func (s *Service) claimError(ctx context.Context, claim model.Claim, op string, err error) error {
	logger := logging.WithJob(s.logger, claim.JobID).With(zap.Int("attempt", claim.Attempt))
	if stderrors.Is(err, repository.ErrNotFound) {
		logger.Info("job deleted while processing, dropping " + op)
		return nil
	}
	if stderrors.Is(err, errStaleClaim) {
		logger.Warn("job was claimed again, dropping stale " + op)
		return nil
	}
	var conflict *repository.StateConflictError
	if stderrors.As(err, &conflict) {
		current, getErr := s.store.Get(ctx, claim.JobID)
		if getErr == nil && claim.Supersedes(current) {
			logger.Warn("job was requeued, dropping stale "+op, zap.String("status", string(current.Status)))
			return nil
		}
		if stderrors.Is(getErr, repository.ErrNotFound) {
			logger.Info("job deleted while processing, dropping " + op)
			return nil
		}
		return apperrors.InvalidState(claim.JobID, string(conflict.Expected), string(conflict.Current))
	}
	return apperrors.Wrapf(err, "%s job %s", op, claim.JobID)
}

func markFailed(j *model.Job, kind apperrors.Kind, cause error, at time.Time) {
	j.Status = model.JobStatusFailed
	j.CompletedAt = &at
	j.Result = nil
	j.Error = &model.JobError{Kind: kind, Message: apperrors.MessageOf(cause)}
}

// Get returns a job snapshot
func (s *Service) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "get job")
	}
	return job, nil
}

// Delete removes the job in any state along with its upload. A worker still
// processing it finishes, and its Complete or Fail becomes a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("job", id)
		}
		return apperrors.Wrap(err, "delete job")
	}
	s.removeUpload(ctx, job.Input.StorageKey)
	logging.WithJob(s.logger, id).Info("job deleted", zap.String("status", string(job.Status)))
	return nil
}

// SetProgress publishes the current stage of a processing job and counts
// as a heartbeat. Updates from a claim that no longer owns the job are
// ignored.
func (s *Service) SetProgress(ctx context.Context, claim model.Claim, stage model.Stage) error {
	return s.touch(ctx, claim, "set progress", func(j *model.Job) {
		j.Progress = stage
	})
}

// Heartbeat tells the reaper the claiming worker is still alive
func (s *Service) Heartbeat(ctx context.Context, claim model.Claim) error {
	return s.touch(ctx, claim, "heartbeat", nil)
}

func (s *Service) touch(ctx context.Context, claim model.Claim, op string, edit func(j *model.Job)) error {
	beat := s.now()
	_, err := s.store.Update(ctx, claim.JobID, model.JobStatusProcessing, func(j *model.Job) error {
		if !claim.Holds(j) {
			return errStaleClaim
		}
		j.HeartbeatAt = &beat
		if edit != nil {
			edit(j)
		}
		return nil
	})
	var conflict *repository.StateConflictError
	if err == nil || stderrors.Is(err, repository.ErrNotFound) || stderrors.Is(err, errStaleClaim) || stderrors.As(err, &conflict) {
		return nil
	}
	return apperrors.Wrap(err, op)
}

// Requeue moves a processing job back to pending if claim still owns it and
// its worker has not reported in since seen. The boolean is false when the
// job moved on.
func (s *Service) Requeue(ctx context.Context, claim model.Claim, seen time.Time) (bool, error) {
	_, err := s.store.Update(ctx, claim.JobID, model.JobStatusProcessing, func(j *model.Job) error {
		if !stillStale(j, claim, seen) {
			return errStaleClaim
		}
		j.Status = model.JobStatusPending
		j.StartedAt = nil
		j.HeartbeatAt = nil
		j.Progress = model.StageQueued
		return nil
	})
	if ok, err := s.supervisorResult(err, "requeue"); !ok {
		return false, err
	}
	s.metrics.JobRequeued()
	logging.WithJob(s.logger, claim.JobID).Warn("orphaned job requeued", zap.Int("attempt", claim.Attempt))
	return true, nil
}

// FailOrphaned fails a processing job abandoned by its worker, under the
// same checks as Requeue
func (s *Service) FailOrphaned(ctx context.Context, claim model.Claim, seen time.Time) (bool, error) {
	var cause error
	failedAt := s.now()
	_, err := s.store.Update(ctx, claim.JobID, model.JobStatusProcessing, func(j *model.Job) error {
		if !stillStale(j, claim, seen) {
			return errStaleClaim
		}
		cause = apperrors.Orphaned(claim.JobID, j.Attempts)
		markFailed(j, apperrors.KindOrphanedProcessing, cause, failedAt)
		return nil
	})
	if ok, err := s.supervisorResult(err, "fail orphaned"); !ok {
		return false, err
	}
	s.metrics.JobFailed(string(apperrors.KindOrphanedProcessing))
	logging.WithJob(s.logger, claim.JobID).Warn("orphaned job failed", zap.Error(cause))
	return true, nil
}

// stillStale holds when claim owns j and nothing was heard from it after seen
func stillStale(j *model.Job, claim model.Claim, seen time.Time) bool {
	if !claim.Holds(j) {
		return false
	}
	active, _ := j.LastActive()
	return !active.After(seen)
}

// supervisorResult treats lost races as a clean "nothing to do"
func (s *Service) supervisorResult(err error, op string) (bool, error) {
	if err == nil {
		return true, nil
	}
	var conflict *repository.StateConflictError
	if stderrors.Is(err, errStaleClaim) || stderrors.Is(err, repository.ErrNotFound) || stderrors.As(err, &conflict) {
		return false, nil
	}
	return false, apperrors.Wrap(err, op)
}

// Processing lists jobs currently claimed by a worker
func (s *Service) Processing(ctx context.Context, limit int) ([]*model.Job, error) {
	jobs, err := s.store.ListByStatus(ctx, model.JobStatusProcessing, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "list processing jobs")
	}
	return jobs, nil
}

// FetchUpload copies a job's stored upload to localPath
func (s *Service) FetchUpload(ctx context.Context, job *model.Job, localPath string) error {
	return s.uploads.Fetch(ctx, job.Input.StorageKey, localPath)
}

// Ping checks the job store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
