// Package alignment fuses diarization turns with transcription spans into
// speaker-attributed utterances.
//
// Each span is attributed to exactly one segment, the one it overlaps most.
// Overlapping speech therefore lands on a single speaker; this is a known
// limitation of the model, not something the engine tries to recover.
package alignment

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

const epsilon = 1e-9

// Options tunes alignment. The zero value reproduces the strict behaviour:
// only contiguous spans attributed to the same segment are merged.
type Options struct {
	// AudioDuration bounds the implicit segment used when diarization
	// produced nothing.
	AudioDuration float64
	// MaxMergeGap merges adjacent utterances of the same speaker whose
	// silence gap is at most this many seconds. Zero disables it.
	MaxMergeGap float64
}

// group is a run of consecutive spans attributed to the same segment
type group struct {
	speakerID string
	spans     []model.TranscriptSpan
}

// Align attributes every span to a speaker segment and merges runs into
// utterances. The output is sorted by start and contains every span's text
// exactly once.
func Align(segments []model.SpeakerSegment, spans []model.TranscriptSpan, opts Options) []model.Utterance {
	if len(spans) == 0 {
		return []model.Utterance{}
	}

	sortedSpans := sortSpans(spans)
	sortedSegments := sortSegments(segments)
	if len(sortedSegments) == 0 {
		sortedSegments = []model.SpeakerSegment{implicitSegment(sortedSpans, opts.AudioDuration)}
	}

	var groups []group
	last := -1
	for _, span := range sortedSpans {
		idx := attribute(sortedSegments, span)
		if idx == last {
			g := &groups[len(groups)-1]
			g.spans = append(g.spans, span)
			continue
		}
		groups = append(groups, group{
			speakerID: sortedSegments[idx].SpeakerID,
			spans:     []model.TranscriptSpan{span},
		})
		last = idx
	}

	// Speaker IDs ride in the Speaker field until labels are assigned.
	utterances := lo.Map(groups, func(g group, _ int) model.Utterance {
		return fuse(g)
	})
	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].Start < utterances[j].Start
	})

	utterances = mergeGaps(utterances, opts.MaxMergeGap)
	relabel(utterances)
	return utterances
}

// SpeakerCount returns the number of distinct speakers in a transcript
func SpeakerCount(utterances []model.Utterance) int {
	return len(lo.Uniq(lo.Map(utterances, func(u model.Utterance, _ int) string {
		return u.Speaker
	})))
}

func sortSpans(spans []model.TranscriptSpan) []model.TranscriptSpan {
	out := make([]model.TranscriptSpan, len(spans))
	copy(out, spans)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

func sortSegments(segments []model.SpeakerSegment) []model.SpeakerSegment {
	out := make([]model.SpeakerSegment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

func implicitSegment(spans []model.TranscriptSpan, audioDuration float64) model.SpeakerSegment {
	end := audioDuration
	for _, s := range spans {
		end = math.Max(end, s.End)
	}
	return model.SpeakerSegment{SpeakerID: "", Start: 0, End: end}
}

// attribute returns the index of the segment owning span. Ties on overlap
// go to the closer midpoint, then to the earlier segment. Spans touching no
// segment go to the nearest one.
func attribute(segments []model.SpeakerSegment, span model.TranscriptSpan) int {
	best := -1
	bestOverlap := 0.0
	bestMid := 0.0
	mid := span.Midpoint()

	for i, seg := range segments {
		if span.Start > seg.End || seg.Start > span.End {
			continue
		}
		overlap := math.Min(seg.End, span.End) - math.Max(seg.Start, span.Start)
		midDist := math.Abs(seg.Midpoint() - mid)
		switch {
		case best == -1,
			overlap > bestOverlap+epsilon,
			math.Abs(overlap-bestOverlap) <= epsilon && midDist < bestMid-epsilon:
			best, bestOverlap, bestMid = i, overlap, midDist
		}
	}
	if best != -1 {
		return best
	}

	bestDist := math.Inf(1)
	for i, seg := range segments {
		d := boundaryDistance(seg, span)
		if d < bestDist-epsilon {
			best, bestDist = i, d
		}
	}
	return best
}

func boundaryDistance(seg model.SpeakerSegment, span model.TranscriptSpan) float64 {
	if span.End < seg.Start {
		return seg.Start - span.End
	}
	return span.Start - seg.End
}

func fuse(g group) model.Utterance {
	first := g.spans[0]
	u := model.Utterance{
		Speaker: g.speakerID,
		Start:   first.Start,
		End:     first.End,
	}

	parts := make([]string, 0, len(g.spans))
	weights := make([]float64, 0, len(g.spans))
	confidences := make([]float64, 0, len(g.spans))
	for _, s := range g.spans {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
		u.End = math.Max(u.End, s.End)
		weights = append(weights, s.Duration())
		confidences = append(confidences, s.Confidence)
	}
	u.Text = strings.Join(parts, " ")
	u.Confidence = weightedMean(confidences, weights)
	return u
}

// weightedMean falls back to the plain mean when every weight is zero
func weightedMean(values, weights []float64) float64 {
	total := lo.Sum(weights)
	if total <= 0 {
		return lo.Sum(values) / float64(len(values))
	}
	acc := 0.0
	for i, v := range values {
		acc += v * weights[i]
	}
	return acc / total
}

func mergeGaps(utterances []model.Utterance, maxGap float64) []model.Utterance {
	if maxGap <= 0 || len(utterances) < 2 {
		return utterances
	}

	out := make([]model.Utterance, 0, len(utterances))
	out = append(out, utterances[0])
	for _, u := range utterances[1:] {
		prev := &out[len(out)-1]
		if prev.Speaker != u.Speaker || u.Start-prev.End > maxGap {
			out = append(out, u)
			continue
		}
		conf := weightedMean(
			[]float64{prev.Confidence, u.Confidence},
			[]float64{prev.End - prev.Start, u.End - u.Start},
		)
		prev.Text = strings.TrimSpace(prev.Text + " " + u.Text)
		prev.End = math.Max(prev.End, u.End)
		prev.Confidence = conf
	}
	return out
}

// relabel replaces opaque speaker IDs with "Speaker A", "Speaker B", ... in
// order of first appearance.
func relabel(utterances []model.Utterance) {
	labels := make(map[string]string)
	for i := range utterances {
		id := utterances[i].Speaker
		label, ok := labels[id]
		if !ok {
			label = SpeakerLabel(len(labels))
			labels[id] = label
		}
		utterances[i].Speaker = label
	}
}

// SpeakerLabel returns the human facing label for the n-th speaker,
// continuing AA, AB, ... after Z.
func SpeakerLabel(n int) string {
	var b []byte
	for n >= 0 {
		b = append([]byte{byte('A' + n%26)}, b...)
		n = n/26 - 1
	}
	return "Speaker " + string(b)
}
