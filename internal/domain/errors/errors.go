package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeInternal            ErrorType = "internal"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeDataUnavailable     ErrorType = "data_unavailable"
	ErrorTypeInsufficientSamples ErrorType = "insufficient_samples"
	ErrorTypeSensorError         ErrorType = "sensor_error"
	ErrorTypeInvalidFeedback     ErrorType = "invalid_feedback"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewDataUnavailableError marks a store outage. The engine treats absence of
// data as a normal state, so callers convert this to an empty result.
func NewDataUnavailableError(source string) *AppError {
	return &AppError{
		Type:       ErrorTypeDataUnavailable,
		Code:       "DATA_UNAVAILABLE",
		Message:    fmt.Sprintf("%s unreachable", source),
		Retryable:  true,
		StatusCode: 503,
		Details:    map[string]interface{}{"source": source},
	}
}

// NewInsufficientSamplesError excludes one metric from a batch without
// failing the batch.
func NewInsufficientSamplesError(metric string, have, need int) *AppError {
	return &AppError{
		Type:       ErrorTypeInsufficientSamples,
		Code:       "INSUFFICIENT_SAMPLES",
		Message:    fmt.Sprintf("metric %s has %d samples, need %d", metric, have, need),
		Retryable:  false,
		StatusCode: 422,
		Details:    map[string]interface{}{"metric": metric, "have": have, "need": need},
	}
}

func NewSensorError(metric string, value float64) *AppError {
	return &AppError{
		Type:       ErrorTypeSensorError,
		Code:       "SENSOR_ERROR",
		Message:    fmt.Sprintf("implausible %s reading discarded", metric),
		Retryable:  false,
		StatusCode: 422,
		Details:    map[string]interface{}{"metric": metric, "value": value},
	}
}

// NewInvalidFeedbackError covers unknown anomaly IDs and already-terminal
// outcomes. Callers log it and report success to the submitter.
func NewInvalidFeedbackError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidFeedback,
		Code:       "INVALID_FEEDBACK",
		Message:    message,
		Retryable:  false,
		StatusCode: 200,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

// Predefined common errors
var (
	ErrInvalidInput    = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrAnomalyNotFound = NewNotFoundError("anomaly")
	ErrPatternNotFound = NewNotFoundError("pattern")
	ErrCooldownActive  = NewRateLimitError("detection cooldown active for user")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
