package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// TwoSpeakerSegments is a ten second clip with a speaker change at five
func TwoSpeakerSegments() []model.SpeakerSegment {
	return []model.SpeakerSegment{
		{SpeakerID: "SPEAKER_00", Start: 0, End: 5},
		{SpeakerID: "SPEAKER_01", Start: 5, End: 10},
	}
}

// TwoSpeakerSpans pairs with TwoSpeakerSegments
func TwoSpeakerSpans() []model.TranscriptSpan {
	return []model.TranscriptSpan{
		{Text: "hello", Start: 0, End: 2, Confidence: 0.9},
		{Text: "world", Start: 2, End: 5, Confidence: 0.8},
		{Text: "hi", Start: 5, End: 8, Confidence: 0.95},
	}
}

// TwoSpeakerUtterances is the aligned result of the two speaker scenario
func TwoSpeakerUtterances() []model.Utterance {
	return []model.Utterance{
		{Speaker: "Speaker A", Start: 0, End: 5, Text: "hello world", Confidence: 0.84},
		{Speaker: "Speaker B", Start: 5, End: 8, Text: "hi", Confidence: 0.95},
	}
}

// FixedTime is the creation time used by fixtures
var FixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// NewCompletedJob returns a completed job holding the two speaker result
func NewCompletedJob(id string) *model.Job {
	started := FixedTime.Add(time.Second)
	completed := FixedTime.Add(30 * time.Second)
	return &model.Job{
		ID:          id,
		Status:      model.JobStatusCompleted,
		CreatedAt:   FixedTime,
		StartedAt:   &started,
		CompletedAt: &completed,
		Input: model.Input{
			FileName:      "standup.wav",
			ContentType:   "audio/wav",
			Size:          320000,
			StorageKey:    id + "_standup.wav",
			AudioDuration: 10,
		},
		Params:   model.Params{ResponseFormat: model.FormatJSON},
		Attempts: 1,
		Progress: model.StageDone,
		Result: &model.Result{
			Utterances:       TwoSpeakerUtterances(),
			AudioDuration:    10,
			SpeakersDetected: 2,
		},
	}
}

// NewPendingJob returns a freshly submitted job
func NewPendingJob(id string) *model.Job {
	return &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		CreatedAt: FixedTime,
		Input: model.Input{
			FileName:      "standup.wav",
			ContentType:   "audio/wav",
			Size:          320000,
			StorageKey:    id + "_standup.wav",
			AudioDuration: 10,
		},
		Params:   model.Params{ResponseFormat: model.FormatJSON},
		Progress: model.StageQueued,
	}
}

// WriteFile creates name under a test temp dir and returns its path
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}
