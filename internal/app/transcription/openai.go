package transcription

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// OpenAIConfig configures the hosted (or OpenAI compatible) audio API
type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// OpenAISource transcribes with the audio transcription endpoint
type OpenAISource struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAISource creates a client; BaseURL overrides the default endpoint
func NewOpenAISource(config OpenAIConfig) *OpenAISource {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAISource{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

func (s *OpenAISource) Name() string { return "openai" }

// Transcribe requests verbose_json with segment timestamps
func (s *OpenAISource) Transcribe(ctx context.Context, a audio.Audio) ([]model.TranscriptSpan, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		FilePath: a.Path,
		Language: s.config.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "openai transcription failed")
	}

	spans := make([]model.TranscriptSpan, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		if span, ok := newSpan(seg.Text, seg.Start, seg.End, LogprobConfidence(seg.AvgLogprob)); ok {
			spans = append(spans, span)
		}
	}
	return spans, nil
}
