package worker

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/diarization"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/transcription"
)

// Models is the set of model clients owned by one worker slot. It is
// acquired once when the slot starts and closed when it stops.
type Models struct {
	Converter   audio.Converter
	Diarizer    diarization.Source
	Transcriber transcription.Source
	Enricher    enrichment.Enricher
}

// ModelFactory builds a fresh Models for a slot
type ModelFactory func(ctx context.Context) (*Models, error)

// Validate reports missing required members
func (m *Models) Validate() error {
	fields := map[string]string{}
	if m.Converter == nil {
		fields["converter"] = "is required"
	}
	if m.Diarizer == nil {
		fields["diarizer"] = "is required"
	}
	if m.Transcriber == nil {
		fields["transcriber"] = "is required"
	}
	if len(fields) > 0 {
		return apperrors.Validation("incomplete model handle", fields)
	}
	if m.Enricher == nil {
		m.Enricher = enrichment.Disabled{}
	}
	return nil
}

// Close releases any member that holds resources
func (m *Models) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, member := range []interface{}{m.Converter, m.Diarizer, m.Transcriber, m.Enricher} {
		if c, ok := member.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}
