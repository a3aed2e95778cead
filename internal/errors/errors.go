// Package errors provides standardized error handling for the Monastery360 service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the Monastery360 service.
type ErrorCode string

const (
	// Validation errors
	M360_VALIDATION  ErrorCode = "M360_VALIDATION"  // Malformed or missing required input
	M360_BAD_REQUEST ErrorCode = "M360_BAD_REQUEST" // Bad request

	// Resource errors
	M360_NOT_FOUND ErrorCode = "M360_NOT_FOUND" // Resource not found, no nearby monasteries
	M360_CONFLICT  ErrorCode = "M360_CONFLICT"  // Resource conflict

	// Server errors
	M360_UPSTREAM    ErrorCode = "M360_UPSTREAM"    // Store or collaborator failed during a read
	M360_INTERNAL    ErrorCode = "M360_INTERNAL"    // Internal server error
	M360_UNAVAILABLE ErrorCode = "M360_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case M360_VALIDATION, M360_BAD_REQUEST:
		return http.StatusBadRequest
	case M360_NOT_FOUND:
		return http.StatusNotFound
	case M360_CONFLICT:
		return http.StatusConflict
	case M360_UNAVAILABLE:
		return http.StatusServiceUnavailable
	case M360_UPSTREAM:
		// Store failures during reads surface as internal errors to clients.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
