package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
)

// Response is the success envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope
type ErrorResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// statusFor maps an error code to its HTTP status
func statusFor(code apperr.Code) int {
	switch {
	case code == apperr.CodeDuplicateSuspected:
		return http.StatusConflict
	case code.IsPolicyViolation():
		return http.StatusBadRequest
	}

	switch code {
	case apperr.CodeValidation, apperr.CodeInvalidID:
		return http.StatusBadRequest
	case apperr.CodeAuthRequired:
		return http.StatusUnauthorized
	case apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAlreadyDecided, apperr.CodeInvalidTransition, apperr.CodeDuplicate:
		return http.StatusConflict
	case apperr.CodeApp:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError is the only place errors become HTTP responses.
// Untyped errors are logged in full and reported generically.
func respondError(c *gin.Context, logger Logger, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)

	message := "internal server error"
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(ctxKeyRequestID),
			"error", err,
		)
		code = apperr.CodeInternal
	} else {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
		if code != apperr.CodeValidation && !code.IsPolicyViolation() {
			logger.Info("Request refused",
				"path", c.Request.URL.Path,
				"error_code", code,
				"message", message,
			)
		}
	}

	c.JSON(status, ErrorResponse{
		Success:   false,
		ErrorCode: string(code),
		Message:   message,
	})
}
