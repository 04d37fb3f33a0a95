package models

import (
	"errors"
	"fmt"
)

// Error codes used in run reports, API responses and internal error handling.
const (
	// ErrCodeConfig marks a missing credential or invalid setting. It is
	// raised before any network attempt and never retried.
	ErrCodeConfig = "CONFIG_ERROR"

	// Scrape-related codes. Both are retried by the Fetcher.
	ErrCodeFetch     = "FETCH_FAILED"
	ErrCodeNoContent = "FETCH_NO_CONTENT"

	// Model-related codes. ErrCodeLLMInvalidOutput is a data-quality failure,
	// the other three are transport failures.
	ErrCodeLLMFailure       = "LLM_FAILURE"
	ErrCodeLLMAuthFailure   = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited   = "LLM_RATE_LIMITED"
	ErrCodeLLMInvalidOutput = "LLM_INVALID_OUTPUT"

	ErrCodeStorage = "STORAGE_FAILED"

	// ErrCodeBusy marks a run whose context ended while it waited for the
	// run ahead of it to finish.
	ErrCodeBusy = "PIPELINE_BUSY"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PipelineError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type PipelineError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *PipelineError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first PipelineError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// AsPipelineError returns err as a PipelineError, wrapping foreign errors
// under ErrCodeInternal.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPipelineError(ErrCodeInternal, err.Error(), err)
}
