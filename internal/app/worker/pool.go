package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
)

// Pool runs independent worker slots, each with its own model handle
type Pool struct {
	slots   int
	jobs    JobService
	factory ModelFactory
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPool creates a pool of at least one slot
func NewPool(slots int, jobs JobService, factory ModelFactory, config Config, logger *zap.Logger, m *metrics.Metrics) *Pool {
	if slots < 1 {
		slots = 1
	}
	return &Pool{
		slots:   slots,
		jobs:    jobs,
		factory: factory,
		config:  config,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Run acquires every slot's models up front, then runs all slots until ctx
// is cancelled. Models are released when the pool stops.
func (p *Pool) Run(ctx context.Context) error {
	handles := make([]*Models, 0, p.slots)
	closeAll := func() {
		for _, m := range handles {
			if err := m.Close(); err != nil {
				p.logger.Warn("failed to release models", zap.Error(err))
			}
		}
	}

	for i := 0; i < p.slots; i++ {
		models, err := p.factory(ctx)
		if err != nil {
			closeAll()
			return apperrors.Wrapf(err, "acquire models for slot %d", i)
		}
		if err := models.Validate(); err != nil {
			handles = append(handles, models)
			closeAll()
			return err
		}
		handles = append(handles, models)
	}
	defer closeAll()

	p.logger.Info("worker pool starting", zap.Int("slots", p.slots))
	g, gctx := errgroup.WithContext(ctx)
	for i, models := range handles {
		w := New(i, p.jobs, models, p.config, p.logger, p.metrics)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
