// Package cmdutil holds the bootstrap shared by the diarizer subcommands.
package cmdutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/config"
)

var (
	// Verbose switches to the development logger
	Verbose bool
	// ConfigPath is the optional YAML overlay
	ConfigPath string
)

// SignalContext is cancelled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// LoadConfig reads the config file and environment
func LoadConfig() (*config.Config, error) {
	return config.Load(ConfigPath)
}

// NewLogger picks the development logger outside production or when
// verbose output was requested
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(Verbose || !cfg.IsProduction())
}

// Bootstrap loads the configuration and opens the application. configure
// may adjust the config before anything is opened.
func Bootstrap(ctx context.Context, configure func(*config.Config)) (*app.Application, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if configure != nil {
		configure(cfg)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	application, err := app.InitializeApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		_ = logger.Sync()
		return nil, err
	}
	return application, nil
}

// Shutdown closes the application and flushes the logger
func Shutdown(application *app.Application) {
	if err := application.Close(); err != nil {
		application.Logger.Warn("close failed", zap.Error(err))
	}
	_ = application.Logger.Sync()
}
