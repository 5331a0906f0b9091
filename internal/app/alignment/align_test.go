package alignment

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

func seg(id string, start, end float64) model.SpeakerSegment {
	return model.SpeakerSegment{SpeakerID: id, Start: start, End: end}
}

func span(text string, start, end, conf float64) model.TranscriptSpan {
	return model.TranscriptSpan{Text: text, Start: start, End: end, Confidence: conf}
}

func TestAlign_TwoSpeakerScenario(t *testing.T) {
	segments := []model.SpeakerSegment{seg("A", 0, 5), seg("B", 5, 10)}
	spans := []model.TranscriptSpan{
		span("hello", 0, 2, 0.9),
		span("world", 2, 5, 0.8),
		span("hi", 5, 8, 0.95),
	}

	got := Align(segments, spans, Options{})

	require.Len(t, got, 2)
	assert.Equal(t, "Speaker A", got[0].Speaker)
	assert.Equal(t, 0.0, got[0].Start)
	assert.Equal(t, 5.0, got[0].End)
	assert.Equal(t, "hello world", got[0].Text)
	// duration weighted: (2*0.9 + 3*0.8) / 5
	assert.InDelta(t, 0.84, got[0].Confidence, 1e-9)

	assert.Equal(t, "Speaker B", got[1].Speaker)
	assert.Equal(t, 5.0, got[1].Start)
	assert.Equal(t, 8.0, got[1].End)
	assert.Equal(t, "hi", got[1].Text)
	assert.InDelta(t, 0.95, got[1].Confidence, 1e-9)
}

func TestAlign_EmptySpans(t *testing.T) {
	tests := []struct {
		name     string
		segments []model.SpeakerSegment
	}{
		{"no segments", nil},
		{"one segment", []model.SpeakerSegment{seg("A", 0, 5)}},
		{"many segments", []model.SpeakerSegment{seg("A", 0, 5), seg("B", 5, 9), seg("C", 9, 12)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(tt.segments, nil, Options{})
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestAlign_NoSegmentsFabricatesSingleSpeaker(t *testing.T) {
	spans := []model.TranscriptSpan{
		span("one", 0, 1, 0.5),
		span("two", 3, 4, 0.7),
		span("three", 10, 12, 0.9),
	}

	got := Align(nil, spans, Options{AudioDuration: 20})

	require.Len(t, got, 1)
	assert.Equal(t, "Speaker A", got[0].Speaker)
	assert.Equal(t, "one two three", got[0].Text)
	assert.Equal(t, 0.0, got[0].Start)
	assert.Equal(t, 12.0, got[0].End)
	assert.InDelta(t, (0.5+0.7+1.8)/4, got[0].Confidence, 1e-9)
}

func TestAlign_UnsortedInputs(t *testing.T) {
	segments := []model.SpeakerSegment{seg("B", 5, 10), seg("A", 0, 5)}
	spans := []model.TranscriptSpan{
		span("hi", 5, 8, 0.95),
		span("world", 2, 5, 0.8),
		span("hello", 0, 2, 0.9),
	}

	got := Align(segments, spans, Options{})

	require.Len(t, got, 2)
	assert.Equal(t, "hello world", got[0].Text)
	assert.Equal(t, "Speaker A", got[0].Speaker)
	assert.Equal(t, "hi", got[1].Text)
	assert.Equal(t, "Speaker B", got[1].Speaker)
}

func TestAlign_SegmentWithoutSpansOmitted(t *testing.T) {
	segments := []model.SpeakerSegment{seg("A", 0, 3), seg("X", 3, 6), seg("B", 6, 9)}
	spans := []model.TranscriptSpan{span("left", 0, 2, 1), span("right", 7, 9, 1)}

	got := Align(segments, spans, Options{})

	require.Len(t, got, 2)
	assert.Equal(t, "Speaker A", got[0].Speaker)
	assert.Equal(t, "Speaker B", got[1].Speaker)
	assert.Equal(t, 2, SpeakerCount(got))
}

func TestAlign_OverlapTieBreaks(t *testing.T) {
	tests := []struct {
		name     string
		segments []model.SpeakerSegment
		span     model.TranscriptSpan
		want     string
	}{
		{
			name:     "largest overlap wins",
			segments: []model.SpeakerSegment{seg("A", 0, 4), seg("B", 3, 10)},
			span:     span("x", 2, 6, 1),
			want:     "B",
		},
		{
			name:     "equal overlap prefers closer midpoint",
			segments: []model.SpeakerSegment{seg("A", 0, 6), seg("B", 4, 8)},
			span:     span("x", 4, 6, 1),
			want:     "B",
		},
		{
			name:     "full tie prefers earlier segment",
			segments: []model.SpeakerSegment{seg("A", 0, 5), seg("B", 5, 10)},
			span:     span("x", 5, 5, 1),
			want:     "A",
		},
		{
			name:     "no intersection goes to nearest boundary",
			segments: []model.SpeakerSegment{seg("A", 0, 2), seg("B", 8, 10)},
			span:     span("x", 6, 7, 1),
			want:     "B",
		},
		{
			name:     "span after every segment",
			segments: []model.SpeakerSegment{seg("A", 0, 2), seg("B", 3, 4)},
			span:     span("x", 20, 21, 1),
			want:     "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := attribute(sortSegments(tt.segments), tt.span)
			assert.Equal(t, tt.want, sortSegments(tt.segments)[idx].SpeakerID)
		})
	}
}

func TestAlign_OverlappingSpeakersAttributeOnce(t *testing.T) {
	segments := []model.SpeakerSegment{seg("A", 0, 6), seg("B", 4, 10)}
	spans := []model.TranscriptSpan{span("both talking", 4, 6, 0.6)}

	got := Align(segments, spans, Options{})

	require.Len(t, got, 1)
	assert.Equal(t, "both talking", got[0].Text)
}

func TestAlign_SameSpeakerDifferentSegmentsNotMergedByDefault(t *testing.T) {
	segments := []model.SpeakerSegment{seg("A", 0, 2), seg("A", 3, 5)}
	spans := []model.TranscriptSpan{span("first", 0, 2, 1), span("second", 3, 5, 1)}

	got := Align(segments, spans, Options{})
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Speaker, got[1].Speaker)

	merged := Align(segments, spans, Options{MaxMergeGap: 1.5})
	require.Len(t, merged, 1)
	assert.Equal(t, "first second", merged[0].Text)
	assert.Equal(t, 5.0, merged[0].End)

	tooFar := Align(segments, spans, Options{MaxMergeGap: 0.5})
	assert.Len(t, tooFar, 2)
}

func TestAlign_ZeroDurationSpansUsePlainMean(t *testing.T) {
	segments := []model.SpeakerSegment{seg("A", 0, 5)}
	spans := []model.TranscriptSpan{span("a", 1, 1, 0.4), span("b", 1, 1, 0.8)}

	got := Align(segments, spans, Options{})

	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Confidence, 1e-9)
}

func TestAlign_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		var segments []model.SpeakerSegment
		nSegments, nSpans := rng.Intn(6), 1+rng.Intn(12)
		for i := 0; i < nSegments; i++ {
			start := rng.Float64() * 60
			segments = append(segments, seg(string(rune('p'+rng.Intn(4))), start, start+0.1+rng.Float64()*10))
		}
		var spans []model.TranscriptSpan
		for i := 0; i < nSpans; i++ {
			start := rng.Float64() * 60
			spans = append(spans, span(tokenFor(i), start, start+rng.Float64()*3, rng.Float64()))
		}

		got := Align(segments, spans, Options{})
		again := Align(segments, spans, Options{})
		assert.Equal(t, got, again, "alignment must be deterministic")

		assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Start < got[j].Start }))

		var words []string
		for _, u := range got {
			assert.GreaterOrEqual(t, u.End, u.Start)
			assert.GreaterOrEqual(t, u.Confidence, 0.0)
			assert.LessOrEqual(t, u.Confidence, 1.0+1e-9)
			words = append(words, strings.Fields(u.Text)...)
		}
		var want []string
		for _, s := range spans {
			want = append(want, s.Text)
		}
		assert.ElementsMatch(t, want, words, "every span contributes exactly once")
	}
}

func TestSpeakerLabel(t *testing.T) {
	assert.Equal(t, "Speaker A", SpeakerLabel(0))
	assert.Equal(t, "Speaker Z", SpeakerLabel(25))
	assert.Equal(t, "Speaker AA", SpeakerLabel(26))
	assert.Equal(t, "Speaker AB", SpeakerLabel(27))
	assert.Equal(t, "Speaker BA", SpeakerLabel(52))
}

func tokenFor(i int) string {
	return "w" + string(rune('a'+i))
}
