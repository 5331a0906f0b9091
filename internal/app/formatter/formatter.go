// Package formatter renders a transcript into the supported output
// encodings. Every encoder is pure: the same result always produces the same
// bytes, and an empty transcript produces a valid empty document.
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// Content types served for each format
const (
	ContentTypeJSON = "application/json"
	ContentTypeSRT  = "application/x-subrip; charset=utf-8"
	ContentTypeVTT  = "text/vtt; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FormatXLSX is an export-only format; jobs cannot request it at submission.
const FormatXLSX model.ResponseFormat = "xlsx"

// Timestamp formats seconds as HH:MM:SS<sep>mmm, rounding to the nearest
// millisecond.
func Timestamp(seconds float64, sep string) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d",
		ms/3_600_000, ms/60_000%60, ms/1000%60, sep, ms%1000)
}

// JSON renders the full result including metadata and enrichment
func JSON(result *model.Result) ([]byte, error) {
	doc := normalize(result)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, apperrors.Wrap(err, "encode json transcript")
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses a document produced by JSON
func DecodeJSON(data []byte) (*model.Result, error) {
	var result model.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperrors.Wrap(err, "decode json transcript")
	}
	if result.Utterances == nil {
		result.Utterances = []model.Utterance{}
	}
	return &result, nil
}

// SRT renders 1-indexed subtitle blocks
func SRT(utterances []model.Utterance) string {
	lines := make([]string, 0, len(utterances)*4)
	for i, u := range utterances {
		lines = append(lines,
			strconv.Itoa(i+1),
			Timestamp(u.Start, ",")+" --> "+Timestamp(u.End, ","),
			"["+u.Speaker+"] "+u.Text,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// VTT renders WebVTT cues without index numbers
func VTT(utterances []model.Utterance) string {
	lines := make([]string, 0, 2+len(utterances)*3)
	lines = append(lines, "WEBVTT", "")
	for _, u := range utterances {
		lines = append(lines,
			Timestamp(u.Start, ".")+" --> "+Timestamp(u.End, "."),
			"["+u.Speaker+"] "+u.Text,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// Text renders one "[start] speaker: text" line per utterance
func Text(utterances []model.Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, "["+Timestamp(u.Start, ",")+"] "+u.Speaker+": "+u.Text)
	}
	return strings.Join(lines, "\n")
}

// Render encodes result in the requested format and returns the matching
// content type.
func Render(format model.ResponseFormat, result *model.Result) ([]byte, string, error) {
	doc := normalize(result)
	switch format {
	case model.FormatJSON, "":
		data, err := JSON(doc)
		return data, ContentTypeJSON, err
	case model.FormatSRT:
		return []byte(SRT(doc.Utterances)), ContentTypeSRT, nil
	case model.FormatVTT:
		return []byte(VTT(doc.Utterances)), ContentTypeVTT, nil
	case model.FormatText:
		return []byte(Text(doc.Utterances)), ContentTypeText, nil
	case FormatXLSX:
		data, err := XLSX(doc)
		return data, ContentTypeXLSX, err
	default:
		return nil, "", apperrors.Validation(fmt.Sprintf("unsupported format %q", format),
			map[string]string{"format": "must be one of json, srt, vtt, text, xlsx"})
	}
}

// IsSupported reports whether format can be rendered
func IsSupported(format model.ResponseFormat) bool {
	switch format {
	case model.FormatJSON, model.FormatSRT, model.FormatVTT, model.FormatText, FormatXLSX:
		return true
	}
	return false
}

func normalize(result *model.Result) *model.Result {
	if result == nil {
		return &model.Result{Utterances: []model.Utterance{}}
	}
	if result.Utterances == nil {
		r := *result
		r.Utterances = []model.Utterance{}
		return &r
	}
	return result
}
