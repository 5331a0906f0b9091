package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/server"
	v1routes "github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/routes"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/services"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/diarization"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/reaper"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/memory"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/pg"
	jobredis "github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/redis"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/sqlite"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/storage"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/transcription"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/worker"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/config"
)

// Application holds the shared collaborators every command builds on
type Application struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Store    repository.JobStore
	Uploads  storage.Store
	Jobs     *orchestrator.Service
	Enricher enrichment.Enricher
}

// provideJobStore opens the configured job store
func provideJobStore(ctx context.Context, cfg config.StoreConfig) (repository.JobStore, error) {
	var (
		store repository.JobStore
		err   error
	)
	switch cfg.Backend {
	case config.StoreRedis:
		store, err = jobredis.New(ctx, cfg.Redis)
	case config.StoreSQLite:
		store, err = sqlite.Open(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		store, err = pg.Open(ctx, cfg.PostgresDSN)
	case config.StoreMemory:
		store = memory.New()
	default:
		return nil, apperrors.Newf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "open job store")
	}
	return store, nil
}

// provideUploadStore opens the configured upload storage
func provideUploadStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	var (
		uploads storage.Store
		err     error
	)
	switch cfg.Backend {
	case config.StorageLocal:
		uploads, err = storage.NewLocalStore(cfg.UploadDir)
	case config.StorageMinio:
		uploads, err = storage.NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, apperrors.Newf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "open upload storage")
	}
	return uploads, nil
}

// provideEnricher selects the enrichment backend
func provideEnricher(ctx context.Context, cfg enrichment.Config, logger *zap.Logger) (enrichment.Enricher, error) {
	enricher, err := enrichment.New(ctx, cfg, logger)
	if err != nil {
		return nil, apperrors.Wrap(err, "configure enrichment")
	}
	return enricher, nil
}

func provideDiarizer(cfg config.DiarizationConfig) diarization.Source {
	if cfg.Backend == config.DiarizerAlternating {
		return diarization.Alternating{}
	}
	return diarization.NewPyannoteSource(cfg.Pyannote)
}

func provideTranscriber(cfg config.TranscriptionConfig) transcription.Source {
	if cfg.Backend == config.TranscriberOpenAI {
		return transcription.NewOpenAISource(cfg.OpenAI)
	}
	return transcription.NewWhisperServerSource(cfg.WhisperServer)
}

// NewModelFactory builds one model handle per worker slot
func NewModelFactory(cfg *config.Config, logger *zap.Logger) worker.ModelFactory {
	return func(ctx context.Context) (*worker.Models, error) {
		enricher, err := enrichment.New(ctx, cfg.Enrichment, logger)
		if err != nil {
			return nil, err
		}
		return &worker.Models{
			Converter:   audio.NewFFmpeg(),
			Diarizer:    provideDiarizer(cfg.Diarization),
			Transcriber: provideTranscriber(cfg.Transcription),
			Enricher:    enricher,
		}, nil
	}
}

// provideOrchestratorConfig converts the limits and temp dir sections
func provideOrchestratorConfig(cfg *config.Config) orchestrator.Config {
	return cfg.OrchestratorConfig()
}

// newApplication assembles the collaborators built by InitializeApplication
func newApplication(
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	store repository.JobStore,
	uploads storage.Store,
	jobs *orchestrator.Service,
	enricher enrichment.Enricher,
) *Application {
	logger = logging.OrNop(logger)
	logger.Info("application initialized",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Store.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("enrichment", enricher.Name()))

	return &Application{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Store:    store,
		Uploads:  uploads,
		Jobs:     jobs,
		Enricher: enricher,
	}
}

// NewAPIServer builds the HTTP server on the shared orchestrator
func (a *Application) NewAPIServer() *server.Server {
	config := server.DefaultConfig()
	config.Addr = a.Config.HTTPAddr
	config.Environment = a.Config.Environment
	config.MaxUploadSize = a.Config.Limits.MaxFileSize

	return server.NewServer(config, &v1routes.ServiceContainer{
		JobService:    services.NewJobService(a.Jobs),
		HealthService: services.NewHealthService(a.Jobs, a.Enricher, a.Config.Environment),
		Metrics:       a.Metrics.Handler(),
	}, a.Logger)
}

// NewWorkerPool builds the processing pool from the worker section
func (a *Application) NewWorkerPool() *worker.Pool {
	cfg := a.Config
	return worker.NewPool(cfg.Worker.Slots, a.Jobs, NewModelFactory(cfg, a.Logger), worker.Config{
		PollInterval:      cfg.Worker.PollInterval,
		MaxMergeGap:       cfg.Worker.MergeGap,
		EnrichmentTimeout: cfg.Worker.EnrichmentTimeout,
		TempDir:           cfg.Worker.TempDir,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}, a.Logger, a.Metrics)
}

// NewReaper builds the orphan reaper from the reaper section
func (a *Application) NewReaper() *reaper.Reaper {
	return reaper.New(a.Jobs, reaper.Config{
		StaleAfter:  a.Config.Reaper.StaleAfter,
		MaxAttempts: a.Config.Reaper.MaxAttempts,
		Interval:    a.Config.Reaper.Interval,
	}, a.Logger)
}

// Close releases the job store
func (a *Application) Close() error {
	return a.Store.Close()
}
