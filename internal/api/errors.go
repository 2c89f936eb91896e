package api

import (
	"errors"
	"fmt"

	"github.com/pawprint/petfeed/internal/feed"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// ErrSessionNotFound is returned for unknown, expired or foreign session ids
var ErrSessionNotFound = errors.New("feed session not found")

// classify maps an error onto a JSON-RPC code and message
func classify(err error) (int, string) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code, apiErr.Message
	case feed.IsValidation(err):
		return ErrInvalidParams, "Invalid params"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, feed.ErrSessionClosed):
		return ErrUnknownSession, "Unknown session"
	case feed.IsTransient(err):
		return ErrServerError, "Temporarily unavailable"
	default:
		return ErrInternalError, "Internal error"
	}
}
