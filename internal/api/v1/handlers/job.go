package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/middleware"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/services"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
)

// JobHandler handles the transcription job endpoints
type JobHandler struct {
	service services.JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(service services.JobService) *JobHandler {
	return &JobHandler{
		service: service,
	}
}

// Submit handles POST /transcribe
// Accepts a multipart upload and enqueues a diarization job
func (h *JobHandler) Submit(c *gin.Context) {
	var form dto.SubmitForm
	if err := middleware.ValidateForm(c, &form); err != nil {
		middleware.HandleError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		middleware.HandleError(c, errors.NewValidationError("Validation failed",
			map[string]string{"file": "is required"}))
		return
	}
	defer file.Close()

	response, err := h.service.SubmitJob(c.Request.Context(), orchestrator.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, form.Params())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /transcribe/:id
// Returns the job status and, once completed, the transcript in the
// requested format
func (h *JobHandler) Get(c *gin.Context) {
	var query dto.FormatQuery
	if err := middleware.ValidateQuery(c, &query); err != nil {
		middleware.HandleError(c, err)
		return
	}

	response, err := h.service.GetJob(c.Request.Context(), c.Param("id"), model.ResponseFormat(query.Format))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Transcript handles GET /transcribe/:id/transcript
// Serves the encoded transcript of a completed job as a download
func (h *JobHandler) Transcript(c *gin.Context) {
	var query dto.FormatQuery
	if err := middleware.ValidateQuery(c, &query); err != nil {
		middleware.HandleError(c, err)
		return
	}

	doc, err := h.service.GetTranscript(c.Request.Context(), c.Param("id"), model.ResponseFormat(query.Format))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// Delete handles DELETE /transcribe/:id
func (h *JobHandler) Delete(c *gin.Context) {
	response, err := h.service.DeleteJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
