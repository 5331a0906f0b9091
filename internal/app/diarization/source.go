// Package diarization answers "who spoke when" for an audio file.
package diarization

import (
	"context"
	"math"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/alignment"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// Source produces speaker segments for a whole file. expectedSpeakers is a
// hint and may be nil.
type Source interface {
	Name() string
	Diarize(ctx context.Context, a audio.Audio, expectedSpeakers *int) ([]model.SpeakerSegment, error)
}

// Alternating splits the audio into equal turns cycling through the
// expected number of speakers. It stands in for a real model in local
// development.
type Alternating struct{}

func (Alternating) Name() string { return "alternating" }

// Diarize emits roughly eight turns of at least two seconds each
func (Alternating) Diarize(_ context.Context, a audio.Audio, expectedSpeakers *int) ([]model.SpeakerSegment, error) {
	if a.Duration <= 0 {
		return nil, apperrors.New("audio duration unknown")
	}
	speakers := 2
	if expectedSpeakers != nil && *expectedSpeakers > 0 {
		speakers = *expectedSpeakers
	}

	turn := math.Max(2.0, a.Duration/8)
	var segments []model.SpeakerSegment
	for start, i := 0.0, 0; start < a.Duration; i++ {
		end := math.Min(start+turn, a.Duration)
		segments = append(segments, model.SpeakerSegment{
			SpeakerID: alignment.SpeakerLabel(i % speakers),
			Start:     start,
			End:       end,
		})
		start = end
	}
	return segments, nil
}
