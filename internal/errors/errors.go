package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes failures at component boundaries.
type ErrorType string

const (
	// ErrorTypeInput covers bad uploads: format, size, MIME type, age.
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeResourceUnavailable means model artifacts are missing or
	// unloadable; the service is degraded but the process stays up.
	ErrorTypeResourceUnavailable ErrorType = "resource_unavailable"
	// ErrorTypeNoRegions is the terminal failure of per-region analyses
	// when the detector finds nothing to work with.
	ErrorTypeNoRegions ErrorType = "no_regions_found"
	// ErrorTypePartialModel marks a sub-model failure that was absorbed;
	// it is folded into the ensemble, never surfaced as a request failure.
	ErrorTypePartialModel ErrorType = "partial_model"
	// ErrorTypeTimeout covers deadline exceeded on external calls.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal is anything uncaught.
	ErrorTypeInternal ErrorType = "internal"
)

// AppError is a structured application error carrying an HTTP-equivalent
// status code so the transport layer never has to guess.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewInputError creates an error for a rejected upload or bad request field.
func NewInputError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewResourceUnavailableError signals missing or unloadable model artifacts.
func NewResourceUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeResourceUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewNoRegionsError signals that a per-region analysis found nothing to
// analyze. The message is user-facing.
func NewNoRegionsError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNoRegions,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewPartialModelError wraps a sub-model failure that the pipeline absorbs.
func NewPartialModelError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePartialModel,
		Message:    message,
		StatusCode: http.StatusOK,
		Cause:      cause,
	}
}

// NewTimeoutError creates an error for an exceeded deadline.
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates an error for unexpected failures. The message
// shown to callers stays generic; the cause is for logs only.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks whether err (or anything it wraps) is an AppError of the
// given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status for an error, defaulting to 500.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
