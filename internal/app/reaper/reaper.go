// Package reaper recovers jobs whose worker disappeared mid-processing.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// JobSupervisor is the orchestrator surface the reaper needs
type JobSupervisor interface {
	Processing(ctx context.Context, limit int) ([]*model.Job, error)
	Requeue(ctx context.Context, claim model.Claim, seen time.Time) (bool, error)
	FailOrphaned(ctx context.Context, claim model.Claim, seen time.Time) (bool, error)
}

// Config tunes the sweep
type Config struct {
	// StaleAfter is how long a processing job's worker may stay silent
	StaleAfter time.Duration
	// MaxAttempts is the number of claims after which a stale job fails
	// instead of being requeued
	MaxAttempts int
	Interval    time.Duration
	BatchSize   int
}

// Report summarizes one sweep
type Report struct {
	Scanned  int
	Requeued int
	Failed   int
}

// Reaper finds stale processing jobs
type Reaper struct {
	jobs   JobSupervisor
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New applies defaults: 30m stale, 3 attempts, 1m interval, 100 per sweep
func New(jobs JobSupervisor, config Config, logger *zap.Logger) *Reaper {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 30 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Reaper{
		jobs:   jobs,
		config: config,
		logger: logging.OrNop(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sweep requeues or fails every processing job whose worker has not
// reported in for StaleAfter. Jobs that moved on or heartbeated since they
// were listed are skipped.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	jobs, err := r.jobs.Processing(ctx, r.config.BatchSize)
	if err != nil {
		return report, err
	}

	now := r.now()
	for _, job := range jobs {
		report.Scanned++
		age, ok := job.ProcessingAge(now)
		if !ok || age < r.config.StaleAfter {
			continue
		}
		claim, _ := job.Claim()
		seen, _ := job.LastActive()

		logger := logging.WithJob(r.logger, job.ID).With(
			zap.Duration("age", age), zap.Int("attempts", job.Attempts))

		if job.Attempts < r.config.MaxAttempts {
			requeued, err := r.jobs.Requeue(ctx, claim, seen)
			if err != nil {
				logger.Error("requeue failed", zap.Error(err))
				continue
			}
			if requeued {
				report.Requeued++
			}
			continue
		}

		failed, err := r.jobs.FailOrphaned(ctx, claim, seen)
		if err != nil {
			logger.Error("fail orphaned job failed", zap.Error(err))
			continue
		}
		if failed {
			report.Failed++
		}
	}
	return report, nil
}

// Run sweeps on every interval until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		zap.Duration("stale_after", r.config.StaleAfter),
		zap.Int("max_attempts", r.config.MaxAttempts),
		zap.Duration("interval", r.config.Interval))

	for {
		report, err := r.Sweep(ctx)
		if err != nil {
			r.logger.Error("sweep failed", zap.Error(err))
		} else if report.Requeued > 0 || report.Failed > 0 {
			r.logger.Info("sweep finished",
				zap.Int("scanned", report.Scanned),
				zap.Int("requeued", report.Requeued),
				zap.Int("failed", report.Failed))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
