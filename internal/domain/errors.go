package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	Details   string             `json:"details,omitempty"`
	Fields    []*ValidationError `json:"fields,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	RequestID string             `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidEEGData     = "INVALID_EEG_DATA"
	ErrCodeSubmission         = "SUBMISSION_ERROR"
	ErrCodeStageConflict      = "STAGE_CONFLICT"
	ErrCodeSubmissionInFlight = "SUBMISSION_IN_FLIGHT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// Sentinel errors
var (
	ErrInvalidEEGData     = errors.New("invalid EEG data")
	ErrStageMismatch      = errors.New("operation not permitted in current stage")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNoResult           = errors.New("no assessment result available")
	ErrNotFound           = errors.New("not found")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ValidationErrors collects every field problem found in one check
type ValidationErrors []*ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// OrNil returns nil for an empty collection so callers can return it directly
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Fields returns the offending field names in order
func (v ValidationErrors) Fields() []string {
	out := make([]string, len(v))
	for i, e := range v {
		out[i] = e.Field
	}
	return out
}

// InvalidEEGDataError describes why an uploaded sample was rejected
type InvalidEEGDataError struct {
	Reason  string   `json:"reason"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// Error implements the error interface
func (e *InvalidEEGDataError) Error() string {
	var b strings.Builder
	b.WriteString("invalid EEG data: ")
	b.WriteString(e.Reason)
	if len(e.Missing) > 0 {
		b.WriteString("; missing channels: ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		b.WriteString("; non-numeric channels: ")
		b.WriteString(strings.Join(e.Invalid, ", "))
	}
	return b.String()
}

// Is lets errors.Is match ErrInvalidEEGData
func (e *InvalidEEGDataError) Is(target error) bool {
	return target == ErrInvalidEEGData
}

// NewInvalidEEGDataError creates an InvalidEEGDataError with only a reason
func NewInvalidEEGDataError(format string, args ...interface{}) *InvalidEEGDataError {
	return &InvalidEEGDataError{Reason: fmt.Sprintf(format, args...)}
}

// DefaultSubmissionMessage is shown when the predictor gives no reason
const DefaultSubmissionMessage = "Failed to process assessment"

// SubmissionError is returned when the predictor rejects or cannot serve a request
type SubmissionError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultSubmissionMessage
	}
	if e.Err != nil {
		return fmt.Sprintf("submission failed: %s: %v", msg, e.Err)
	}
	return "submission failed: " + msg
}

// Unwrap exposes the transport cause
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// AnalyticsFetchError records a degraded analytics source
type AnalyticsFetchError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e *AnalyticsFetchError) Error() string {
	return fmt.Sprintf("analytics fetch from %s failed: %v", e.Source, e.Err)
}

// Unwrap exposes the cause
func (e *AnalyticsFetchError) Unwrap() error {
	return e.Err
}
