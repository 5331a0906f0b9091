// Package enrichment asks a language model for a summary, action items and
// topics of a finished transcript. Every failure here is soft: callers get
// an enrichment_unavailable error and keep the transcript.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// MaxTranscriptChars bounds the transcript sent to the model
const MaxTranscriptChars = 8000

// Backend generates one completion for a prompt
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
	Probe(ctx context.Context) bool
}

// Enricher is what the worker and the HTTP layer depend on
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, fullText string) (*model.Enhancements, error)
	Available(ctx context.Context) bool
}

type prompt struct {
	name        string
	template    string
	temperature float32
}

var prompts = []prompt{
	{
		name: "summary",
		template: "Please provide a concise summary of this meeting transcript. Focus on:\n" +
			"1. Key topics discussed\n" +
			"2. Main decisions made\n" +
			"3. Action items or next steps\n" +
			"4. Important points raised by each speaker\n\n" +
			"Transcript:\n%s\n\nSummary:",
		temperature: 0.1,
	},
	{
		name: "action_items",
		template: "Extract all action items, tasks, and next steps from this meeting transcript. " +
			"Format as a bullet-point list.\n\nTranscript:\n%s\n\nAction Items:",
		temperature: 0.1,
	},
	{
		name: "topics",
		template: "Identify the main topics and themes discussed in this meeting transcript. " +
			"List them as bullet points.\n\nTranscript:\n%s\n\nMain Topics:",
		temperature: 0.2,
	},
}

// Stage runs the three prompts against a backend
type Stage struct {
	backend     Backend
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewStage wraps a backend. callTimeout bounds each prompt; zero means 60s.
func NewStage(backend Backend, callTimeout time.Duration, logger *zap.Logger) *Stage {
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{backend: backend, callTimeout: callTimeout, logger: logger}
}

func (s *Stage) Name() string { return s.backend.Name() }

// Enrich runs summary, action items and topics in order. The first failure
// aborts the rest.
func (s *Stage) Enrich(ctx context.Context, fullText string) (*model.Enhancements, error) {
	if strings.TrimSpace(fullText) == "" {
		return nil, apperrors.EnrichmentUnavailable(apperrors.New("empty transcript"))
	}

	answers := make(map[string]string, len(prompts))
	for _, p := range prompts {
		text, err := s.generate(ctx, p, fullText)
		if err != nil {
			s.logger.Warn("enrichment prompt failed",
				zap.String("backend", s.backend.Name()),
				zap.String("prompt", p.name),
				zap.Error(err))
			return nil, apperrors.EnrichmentUnavailable(err)
		}
		answers[p.name] = text
	}

	return &model.Enhancements{
		Summary:     answers["summary"],
		ActionItems: answers["action_items"],
		Topics:      answers["topics"],
	}, nil
}

func (s *Stage) generate(ctx context.Context, p prompt, fullText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	text, err := s.backend.Generate(ctx, fmt.Sprintf(p.template, fullText), p.temperature)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Wrapf(apperrors.ErrResponseInvalid, "%s: empty response", p.name)
	}
	return text, nil
}

// Available probes the backend
func (s *Stage) Available(ctx context.Context) bool {
	return s.backend.Probe(ctx)
}

// Disabled is used when no backend is configured
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Enrich(context.Context, string) (*model.Enhancements, error) {
	return nil, apperrors.EnrichmentUnavailable(apperrors.New("enrichment disabled"))
}

func (Disabled) Available(context.Context) bool { return false }

// FormatTranscript renders "speaker: text" lines and cuts the result at
// MaxTranscriptChars characters, mid-line if need be.
func FormatTranscript(utterances []model.Utterance) string {
	var b strings.Builder
	chars := 0
	for _, u := range utterances {
		if chars >= MaxTranscriptChars {
			break
		}
		line := u.Speaker + ": " + u.Text + "\n"
		chars += utf8.RuneCountInString(line)
		b.WriteString(line)
	}
	return strings.TrimRight(truncateChars(b.String(), MaxTranscriptChars), "\n")
}

// truncateChars keeps the first n characters of s
func truncateChars(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
