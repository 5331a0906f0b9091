package testutil

import (
	"context"
	"sync"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// StaticProber reports the same duration for every file
type StaticProber struct {
	Duration float64
	Err      error
}

func (p *StaticProber) Probe(context.Context, string) (*model.FFProbeOutput, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	var out model.FFProbeOutput
	out.Format.FormatName = "wav"
	out.Format.Duration = p.Duration
	out.Streams = append(out.Streams, model.FFProbeStream{CodecType: "audio"})
	return &out, nil
}

// MockConverter returns its input unchanged unless Err is set
type MockConverter struct {
	Err   error
	mu    sync.Mutex
	calls []string
}

func (m *MockConverter) ConvertTo16kHzWav(_ context.Context, inputPath string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, inputPath)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return inputPath, nil
}

// Calls returns the paths passed to ConvertTo16kHzWav
func (m *MockConverter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockDiarizer returns fixed segments, an error, or panics
type MockDiarizer struct {
	Segments []model.SpeakerSegment
	Err      error
	Panic    string

	mu        sync.Mutex
	callCount int
	lastHint  *int
	closed    bool
}

func (m *MockDiarizer) Name() string { return "mock_diarizer" }

func (m *MockDiarizer) Diarize(_ context.Context, _ audio.Audio, expectedSpeakers *int) ([]model.SpeakerSegment, error) {
	m.mu.Lock()
	m.callCount++
	m.lastHint = expectedSpeakers
	m.mu.Unlock()

	if m.Panic != "" {
		panic(m.Panic)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]model.SpeakerSegment(nil), m.Segments...), nil
}

// Close marks the diarizer released
func (m *MockDiarizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockDiarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *MockDiarizer) LastHint() *int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHint
}

func (m *MockDiarizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockTranscriber returns fixed spans, an error, or panics
type MockTranscriber struct {
	Spans []model.TranscriptSpan
	Err   error
	Panic string

	mu        sync.Mutex
	callCount int
}

func (m *MockTranscriber) Name() string { return "mock_transcriber" }

func (m *MockTranscriber) Transcribe(_ context.Context, _ audio.Audio) ([]model.TranscriptSpan, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.Panic != "" {
		panic(m.Panic)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]model.TranscriptSpan(nil), m.Spans...), nil
}

func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockEnricher returns Result, fails with Err, or blocks until the context
// ends when Block is set
type MockEnricher struct {
	Result *model.Enhancements
	Err    error
	Block  bool
	Up     bool

	mu       sync.Mutex
	lastText string
}

func (m *MockEnricher) Name() string { return "mock_enricher" }

func (m *MockEnricher) Enrich(ctx context.Context, fullText string) (*model.Enhancements, error) {
	m.mu.Lock()
	m.lastText = fullText
	m.mu.Unlock()

	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

func (m *MockEnricher) Available(context.Context) bool { return m.Up }

// LastText returns the transcript passed to the last Enrich call
func (m *MockEnricher) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText
}
