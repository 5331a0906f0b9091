package dto

import (
	"time"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// SubmitForm holds the form fields sent alongside the uploaded file
type SubmitForm struct {
	ExpectedSpeakers  *int   `form:"expected_speakers" binding:"omitempty,min=2,max=10"`
	ResponseFormat    string `form:"response_format" binding:"omitempty,oneof=json srt vtt text"`
	EnableLLMAnalysis bool   `form:"enable_llm_analysis"`
}

// Params converts the form into job parameters. The format defaults to json.
func (f *SubmitForm) Params() model.Params {
	format := model.ResponseFormat(f.ResponseFormat)
	if format == "" {
		format = model.FormatJSON
	}
	return model.Params{
		ExpectedSpeakers:  f.ExpectedSpeakers,
		ResponseFormat:    format,
		EnableLLMAnalysis: f.EnableLLMAnalysis,
	}
}

// FormatQuery selects the encoding of a read. Empty means the format the
// job was submitted with.
type FormatQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=json srt vtt text xlsx"`
}

// SubmitResponse acknowledges an accepted job
type SubmitResponse struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// JobResponse is a job projected through an encoder. Result is the
// structured transcript for json and the rendered document otherwise.
type JobResponse struct {
	JobID       string               `json:"job_id"`
	Status      model.JobStatus      `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Progress    model.Stage          `json:"progress,omitempty"`
	Format      model.ResponseFormat `json:"format"`
	Result      interface{}          `json:"result,omitempty"`
	Error       *model.JobError      `json:"error,omitempty"`
}

// Document is an encoded transcript ready to be written as a response body
type Document struct {
	Body        []byte
	ContentType string
	FileName    string
}

// DeleteResponse confirms a deletion
type DeleteResponse struct {
	Message string `json:"message"`
}
