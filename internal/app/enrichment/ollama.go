package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b"
)

// OllamaConfig points at a local Ollama server
type OllamaConfig struct {
	Host         string        `yaml:"host"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaBackend uses the non-streaming /api/generate endpoint
type OllamaBackend struct {
	config OllamaConfig
	client *http.Client
}

// NewOllamaBackend applies defaults
func NewOllamaBackend(config OllamaConfig) *OllamaBackend {
	if config.Host == "" {
		config.Host = defaultOllamaHost
	}
	if config.Model == "" {
		config.Model = defaultOllamaModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	config.Host = strings.TrimRight(config.Host, "/")
	return &OllamaBackend{config: config, client: &http.Client{Timeout: config.Timeout}}
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Generate sends one prompt and returns the response text
func (b *OllamaBackend) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  b.config.Model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: temperature,
			TopP:        0.9,
			TopK:        40,
		},
	})
	if err != nil {
		return "", apperrors.Wrap(err, "marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, "create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, "ollama request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Wrap(err, "read ollama response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Newf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", apperrors.Wrap(apperrors.ErrResponseInvalid, "decode ollama response")
	}
	return parsed.Response, nil
}

// Probe lists local models with a short timeout
func (b *OllamaBackend) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.Host+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
