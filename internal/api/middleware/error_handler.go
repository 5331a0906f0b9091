package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/errors"
)

// ErrorHandler recovers panics into a generic internal error response
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := GetRequestID(c)

		var apiErr *errors.APIError
		if err, ok := recovered.(*errors.APIError); ok {
			apiErr = err
		} else {
			logger.Error("panic while handling request",
				zap.Any("recovered", recovered),
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			apiErr = errors.NewInternalError("Internal server error")
		}
		apiErr.RequestID = requestID

		c.AbortWithStatusJSON(apiErr.HTTPStatus(), apiErr)
	})
}

// HandleError writes err as an APIError response. Domain errors are mapped
// by kind; anything unclassified is logged and reported as internal.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	apiErr := errors.FromAppError(err)
	apiErr.RequestID = GetRequestID(c)
	if apiErr.Kind == errors.KindInternal || apiErr.Kind == errors.KindServiceUnavailable {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.HTTPStatus(), apiErr)
}
