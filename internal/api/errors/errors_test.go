package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

func TestFromAppError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation",
			err:         apperrors.Validation("validation failed", map[string]string{"response_format": "is required"}),
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "validation failed",
		},
		{
			name:        "file too large",
			err:         apperrors.Validation(apperrors.ErrFileTooLarge.Message(), nil),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "file exceeds maximum size",
		},
		{
			name:        "not found",
			err:         apperrors.NotFound("job", "abc"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "job not found: abc",
		},
		{
			name:        "invalid state",
			err:         apperrors.InvalidState("abc", "completed", "pending"),
			wantStatus:  http.StatusConflict,
			wantMessage: "job abc is pending, expected completed",
		},
		{
			name:        "store unavailable",
			err:         apperrors.Wrap(apperrors.ErrStoreUnavailable, "get job"),
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "job store unavailable",
		},
		{
			name:        "untagged",
			err:         stderrors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
		{
			name:        "model execution is internal",
			err:         apperrors.ModelExecution(stderrors.New("cuda oom"), "diarization"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
		{
			name:        "api error passes through",
			err:         NewBadRequestError("bad"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromAppError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.HTTPStatus())
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}

	assert.Nil(t, FromAppError(nil))
}

func TestFromAppError_KeepsFields(t *testing.T) {
	apiErr := FromAppError(apperrors.Wrap(
		apperrors.Validation("bad params", map[string]string{"expected_speakers": "must be at least 2"}),
		"submit"))
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, "submit", apiErr.Message)
	assert.Equal(t, "must be at least 2", apiErr.Details["expected_speakers"])
}
