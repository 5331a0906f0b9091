package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/errors"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// Validator interface for domain validation
type Validator interface {
	Validate() error
}

var tagNamesOnce sync.Once

// useFormTagNames makes validation errors report form or query field names
// instead of Go struct field names
func useFormTagNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return strings.ToLower(fld.Name)
		})
	})
}

// ValidateForm binds multipart or urlencoded fields and runs both struct tag
// and domain validation
func ValidateForm(c *gin.Context, req interface{}) error {
	useFormTagNames()
	if err := c.ShouldBind(req); err != nil {
		return bindingError(err, "request", "invalid form data")
	}
	return domainValidate(req)
}

// ValidateQuery validates query parameters
func ValidateQuery(c *gin.Context, req interface{}) error {
	useFormTagNames()
	if err := c.ShouldBindQuery(req); err != nil {
		return bindingError(err, "query", "invalid query parameters")
	}
	return domainValidate(req)
}

func domainValidate(req interface{}) error {
	if v, ok := req.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func bindingError(err error, key, fallback string) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.NewPayloadTooLargeError(apperrors.ErrFileTooLarge.Message())
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewValidationError("Validation failed", map[string]string{key: fallback})
	}

	fields := make(map[string]string, len(validationErrs))
	for _, fe := range validationErrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		case "min":
			fields[fe.Field()] = "must be at least " + fe.Param()
		case "max":
			fields[fe.Field()] = "must be at most " + fe.Param()
		case "oneof":
			fields[fe.Field()] = "must be one of: " + fe.Param()
		default:
			fields[fe.Field()] = "is invalid"
		}
	}
	return errors.NewValidationError("Validation failed", fields)
}
