package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Terminal error kinds of a summarization run. A run fails with exactly one of
// these; transient provider errors never surface directly because the retry
// policy absorbs them until attempts run out.
var (
	ErrConfig           = errors.New("invalid configuration")
	ErrBudgetTimeout    = errors.New("token budget wait timed out")
	ErrNoSegments       = errors.New("no segments succeeded")
	ErrReduceFailed     = errors.New("reduce group failed")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrEmptyResponse    = errors.New("empty model response")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigErrorf builds a pre-run configuration error.
func ConfigErrorf(format string, args ...any) error {
	return NewAppError("CONFIG_ERROR", fmt.Sprintf(format, args...), ErrConfig)
}
