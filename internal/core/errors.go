// Package core defines the error taxonomy shared by the lab analysis pipeline
// and the layers around it.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	CatValidation   ErrorCategory = "validation"    // Bad caller input, rejected before any network call
	CatUnknownModel ErrorCategory = "unknown_model" // Model id absent from the registry
	CatExtraction   ErrorCategory = "extraction"    // Extraction stage failed
	CatAnalysis     ErrorCategory = "analysis"      // Analysis stage failed
	CatUnauthorized ErrorCategory = "unauthorized"
	CatForbidden    ErrorCategory = "forbidden"
	CatNotFound     ErrorCategory = "not_found"
	CatInternal     ErrorCategory = "internal"
)

// Error codes used across packages.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidFile      = "INVALID_FILE"
	CodeInvalidKeys      = "INVALID_CREDENTIALS"
	CodeMissingKey       = "MISSING_CREDENTIALS"
	CodeUnknownModel     = "UNKNOWN_MODEL"
	CodeCallFailed       = "CALL_FAILED"
	CodeTimeout          = "TIMEOUT"
	CodeMalformed        = "MALFORMED_RESPONSE"
	CodeNoLabValues      = "NO_LAB_VALUES"
	CodeDefaultNotVision = "DEFAULT_MODEL_NOT_VISION"
)

// DomainError represents a structured error from the domain layer.
// Message is safe to show to users. Diagnostic is a bounded, redacted excerpt
// meant for operators only.
type DomainError struct {
	Category   ErrorCategory
	Code       string
	Message    string
	Diagnostic string
	Cause      error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError by category, and by code when the target has one.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Category != t.Category {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDiagnostic attaches operator-facing diagnostic text.
func (e *DomainError) WithDiagnostic(diag string) *DomainError {
	e.Diagnostic = diag
	return e
}

// Sentinels for errors.Is checks by category.
var (
	ErrValidationKind   = &DomainError{Category: CatValidation}
	ErrUnknownModelKind = &DomainError{Category: CatUnknownModel}
	ErrExtractionKind   = &DomainError{Category: CatExtraction}
	ErrAnalysisKind     = &DomainError{Category: CatAnalysis}
	ErrNotFoundKind     = &DomainError{Category: CatNotFound}
)

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{Category: CatValidation, Code: code, Message: message}
}

// ErrUnknownModel creates an error for a model id missing from the registry.
func ErrUnknownModel(modelID string) *DomainError {
	return &DomainError{
		Category: CatUnknownModel,
		Code:     CodeUnknownModel,
		Message:  fmt.Sprintf("unknown model: %s", modelID),
	}
}

// ErrExtraction creates an extraction stage failure.
func ErrExtraction(code, reason string) *DomainError {
	return &DomainError{Category: CatExtraction, Code: code, Message: reason}
}

// ErrAnalysis creates an analysis stage failure.
func ErrAnalysis(code, reason string) *DomainError {
	return &DomainError{Category: CatAnalysis, Code: code, Message: reason}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: CatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrUnauthorized creates an authentication error.
func ErrUnauthorized(message string) *DomainError {
	return &DomainError{Category: CatUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// ErrForbidden creates an authorization error.
func ErrForbidden(message string) *DomainError {
	return &DomainError{Category: CatForbidden, Code: "FORBIDDEN", Message: message}
}

// IsCategory reports whether err is a DomainError of the given category.
func IsCategory(err error, cat ErrorCategory) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category == cat
	}
	return false
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	var de *DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Category {
	case CatValidation:
		return http.StatusBadRequest
	case CatUnknownModel, CatNotFound:
		return http.StatusNotFound
	case CatUnauthorized:
		return http.StatusUnauthorized
	case CatForbidden:
		return http.StatusForbidden
	case CatExtraction, CatAnalysis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the short user-facing message for err.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "internal error"
}
