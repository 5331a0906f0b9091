package enrichment

import (
	"context"

	"google.golang.org/genai"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini API backend
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiBackend calls GenerateContent on the Gemini developer API
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend requires an API key
func NewGeminiBackend(ctx context.Context, config GeminiConfig) (*GeminiBackend, error) {
	if config.APIKey == "" {
		return nil, apperrors.Validation("gemini api key is required", map[string]string{"api_key": "is required"})
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, apperrors.Wrap(err, "create gemini client")
	}
	return &GeminiBackend{client: client, model: config.Model}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](temperature),
		TopP:        genai.Ptr[float32](0.9),
		TopK:        genai.Ptr[float32](40),
	})
	if err != nil {
		return "", apperrors.Wrap(err, "gemini generate content failed")
	}
	return resp.Text(), nil
}

// Probe fetches the configured model's metadata
func (b *GeminiBackend) Probe(ctx context.Context) bool {
	_, err := b.client.Models.Get(ctx, b.model, nil)
	return err == nil
}
