package feed

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by operations on a closed session
var ErrSessionClosed = errors.New("feed session closed")

// TransientIOError reports the store being unreachable or failing. It is
// retryable by calling the operation again; the feed never retries on its own.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// LookupError reports a failed follow-graph resolution
type LookupError struct {
	ViewerID string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("resolve follows for %s: %v", e.ViewerID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed scope, cursor or limit. It fails the
// single call, never the session.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotificationDispatchError wraps a failed like notification. It is logged
// and never propagated.
type NotificationDispatchError struct {
	PostID string
	Err    error
}

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("dispatch like notification for post %s: %v", e.PostID, e.Err)
}

func (e *NotificationDispatchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err may succeed when the caller tries again
func IsTransient(err error) bool {
	var tErr *TransientIOError
	var lErr *LookupError
	return errors.As(err, &tErr) || errors.As(err, &lErr)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func transient(op string, err error) error {
	if err == nil || IsValidation(err) {
		return err
	}
	return &TransientIOError{Op: op, Err: err}
}
