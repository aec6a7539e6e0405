package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeInternal      = "INTERNAL_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeValidation    = "VALIDATION_ERROR"
	CodeConflict      = "CONFLICT"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnprocessable = "UNPROCESSABLE_ENTITY"

	// Evaluation failures. Transient from the sampler's point of view.
	CodeProcessFailure  = "PROCESS_FAILURE"
	CodeOutputMissing   = "OUTPUT_MISSING"
	CodeOutputMalformed = "OUTPUT_MALFORMED"

	// Fatal for a chain or a run.
	CodeConsecutiveFailureLimit = "CONSECUTIVE_FAILURE_LIMIT_EXCEEDED"
	CodeConfiguration           = "CONFIGURATION_ERROR"
	CodeCancelled               = "CANCELLED"
)

// AppError represents an application error with context
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Internal creates an internal server error
func Internal(message string) *AppError {
	return New(CodeInternal, message, http.StatusInternalServerError)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// Unprocessable creates an unprocessable entity error
func Unprocessable(message string) *AppError {
	return New(CodeUnprocessable, message, http.StatusUnprocessableEntity)
}

// ProcessFailure creates an error for a forward model that exited nonzero,
// timed out or could not be started.
func ProcessFailure(message string) *AppError {
	return New(CodeProcessFailure, message, http.StatusBadGateway)
}

// OutputMissing creates an error for an absent or empty output artifact.
func OutputMissing(path string) *AppError {
	return New(CodeOutputMissing, "output artifact missing or empty", http.StatusBadGateway).
		WithDetail("path", path)
}

// OutputMalformed creates an error for an output artifact that cannot be parsed
// or has the wrong length.
func OutputMalformed(message string) *AppError {
	return New(CodeOutputMalformed, message, http.StatusBadGateway)
}

// ConsecutiveFailureLimit creates the fatal chain error raised once the
// configured number of back-to-back evaluation failures is reached.
func ConsecutiveFailureLimit(chain, iteration, limit int) *AppError {
	return New(CodeConsecutiveFailureLimit,
		fmt.Sprintf("chain %d aborted at iteration %d after %d consecutive evaluation failures", chain, iteration, limit),
		http.StatusUnprocessableEntity).
		WithDetail("chain", fmt.Sprint(chain)).
		WithDetail("iteration", fmt.Sprint(iteration)).
		WithDetail("limit", fmt.Sprint(limit))
}

// Configuration creates an error for an invalid model or sampler setup.
func Configuration(message string) *AppError {
	return New(CodeConfiguration, message, http.StatusBadRequest)
}

// Cancelled creates an error for work stopped by context cancellation.
func Cancelled(message string) *AppError {
	return New(CodeCancelled, message, http.StatusRequestTimeout)
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error if present
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetCode returns the error code, or CodeInternal for foreign errors.
func GetCode(err error) string {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}

func hasCode(err error, code string) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsProcessFailure checks if the error is a process failure
func IsProcessFailure(err error) bool { return hasCode(err, CodeProcessFailure) }

// IsOutputMissing checks if the error is a missing output error
func IsOutputMissing(err error) bool { return hasCode(err, CodeOutputMissing) }

// IsOutputMalformed checks if the error is a malformed output error
func IsOutputMalformed(err error) bool { return hasCode(err, CodeOutputMalformed) }

// IsConsecutiveFailureLimit checks if a chain was aborted by its failure limit
func IsConsecutiveFailureLimit(err error) bool { return hasCode(err, CodeConsecutiveFailureLimit) }

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool { return hasCode(err, CodeConfiguration) }

// IsCancelled checks if the error is a cancellation
func IsCancelled(err error) bool { return hasCode(err, CodeCancelled) }

// IsEvaluationFailure reports whether err is one of the transient forward
// model failures that the likelihood scores with a penalty.
func IsEvaluationFailure(err error) bool {
	switch GetCode(err) {
	case CodeProcessFailure, CodeOutputMissing, CodeOutputMalformed:
		return true
	}
	return false
}
