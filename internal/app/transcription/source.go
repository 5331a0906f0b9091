// Package transcription turns audio into speaker-agnostic transcript spans.
package transcription

import (
	"context"
	"math"
	"strings"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// Source produces transcript spans for a whole file
type Source interface {
	Name() string
	Transcribe(ctx context.Context, a audio.Audio) ([]model.TranscriptSpan, error)
}

// LogprobConfidence maps a whisper average log probability to [0, 1]
func LogprobConfidence(avgLogprob float64) float64 {
	return clamp01(math.Exp(avgLogprob))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// newSpan trims text and repairs inverted bounds. ok is false for spans
// with no text.
func newSpan(text string, start, end, confidence float64) (model.TranscriptSpan, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.TranscriptSpan{}, false
	}
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	return model.TranscriptSpan{Text: text, Start: start, End: end, Confidence: clamp01(confidence)}, true
}
