//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/config"
)

var storeSet = wire.NewSet(
	wire.FieldsOf(new(*config.Config), "Store", "Storage", "Enrichment"),
	provideJobStore,
	provideUploadStore,
	provideEnricher,
)

var orchestratorSet = wire.NewSet(
	audio.NewFFmpeg,
	wire.Bind(new(audio.Prober), new(*audio.FFmpeg)),
	metrics.New,
	provideOrchestratorConfig,
	orchestrator.NewService,
)

// InitializeApplication opens the stores and builds the orchestrator
func InitializeApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	wire.Build(storeSet, orchestratorSet, newApplication)
	return nil, nil
}
