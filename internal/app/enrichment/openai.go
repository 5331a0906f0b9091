package enrichment

import (
	"context"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// OpenAIConfig works for OpenAI and any server speaking its chat API
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OpenAIBackend uses chat completions with a single user message
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a client; BaseURL overrides the default endpoint
func NewOpenAIBackend(config OpenAIConfig) *OpenAIBackend {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(clientConfig), model: config.Model}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		TopP:        0.9,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Wrap(apperrors.ErrResponseInvalid, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Probe lists models; any error means unavailable
func (b *OpenAIBackend) Probe(ctx context.Context) bool {
	_, err := b.client.ListModels(ctx)
	return err == nil
}
