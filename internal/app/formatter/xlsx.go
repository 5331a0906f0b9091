package formatter

import (
	"bytes"

	"github.com/tealeg/xlsx"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

var xlsxHeader = []string{"Speaker", "Start", "End", "Start (s)", "End (s)", "Text", "Confidence"}

// XLSX exports the transcript as a spreadsheet, one row per utterance. A
// second sheet carries the enrichment when present.
func XLSX(result *model.Result) ([]byte, error) {
	doc := normalize(result)
	file := xlsx.NewFile()

	sheet, err := file.AddSheet("Transcript")
	if err != nil {
		return nil, apperrors.Wrap(err, "add transcript sheet")
	}
	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().Value = h
	}
	for _, u := range doc.Utterances {
		row := sheet.AddRow()
		row.AddCell().Value = u.Speaker
		row.AddCell().Value = Timestamp(u.Start, ",")
		row.AddCell().Value = Timestamp(u.End, ",")
		row.AddCell().SetFloat(u.Start)
		row.AddCell().SetFloat(u.End)
		row.AddCell().Value = u.Text
		row.AddCell().SetFloat(u.Confidence)
	}

	if e := doc.LLMEnhancements; e != nil {
		analysis, err := file.AddSheet("Analysis")
		if err != nil {
			return nil, apperrors.Wrap(err, "add analysis sheet")
		}
		for _, kv := range [][2]string{
			{"Summary", e.Summary},
			{"Action items", e.ActionItems},
			{"Topics", e.Topics},
		} {
			row := analysis.AddRow()
			row.AddCell().Value = kv[0]
			row.AddCell().Value = kv[1]
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, apperrors.Wrap(err, "write xlsx")
	}
	return buf.Bytes(), nil
}
