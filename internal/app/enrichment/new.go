package enrichment

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// Backend names accepted by New
const (
	BackendNone   = "none"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config selects and configures the enrichment backend
type Config struct {
	Backend     string        `yaml:"backend"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Ollama      OllamaConfig  `yaml:"ollama"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
	Gemini      GeminiConfig  `yaml:"gemini"`
}

// New returns Disabled for an empty or "none" backend
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Enricher, error) {
	var backend Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return Disabled{}, nil
	case BackendOllama:
		backend = NewOllamaBackend(cfg.Ollama)
	case BackendOpenAI:
		backend = NewOpenAIBackend(cfg.OpenAI)
	case BackendGemini:
		gemini, err := NewGeminiBackend(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		backend = gemini
	default:
		return nil, apperrors.Validation("unknown enrichment backend",
			map[string]string{"backend": "must be one of none, ollama, openai, gemini"})
	}
	return NewStage(backend, cfg.CallTimeout, logger), nil
}
