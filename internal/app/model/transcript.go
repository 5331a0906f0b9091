package model

// SpeakerSegment is one diarization turn. SpeakerID is opaque and only
// meaningful within a single job.
type SpeakerSegment struct {
	SpeakerID string  `json:"speaker_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Duration returns End - Start
func (s SpeakerSegment) Duration() float64 {
	return s.End - s.Start
}

// Midpoint returns the center of the segment
func (s SpeakerSegment) Midpoint() float64 {
	return (s.Start + s.End) / 2
}

// TranscriptSpan is one recognized stretch of speech, independent of speaker.
type TranscriptSpan struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Duration returns End - Start
func (s TranscriptSpan) Duration() float64 {
	return s.End - s.Start
}

// Midpoint returns the center of the span
func (s TranscriptSpan) Midpoint() float64 {
	return (s.Start + s.End) / 2
}

// Utterance is a fused, speaker-attributed stretch of transcribed speech.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Enhancements holds the optional LLM analysis of a transcript.
type Enhancements struct {
	Summary     string `json:"summary"`
	ActionItems string `json:"action_items"`
	Topics      string `json:"topics"`
}

// Result is the canonical output of a completed job. Encoders render it on
// demand; nothing format specific is stored.
type Result struct {
	Utterances       []Utterance   `json:"utterances"`
	AudioDuration    float64       `json:"audio_duration"`
	SpeakersDetected int           `json:"speakers_detected"`
	LLMEnhancements  *Enhancements `json:"llm_enhancements,omitempty"`
}
