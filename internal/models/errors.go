package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmptyMessage       = errors.New("message content is empty")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file exceeds size limit")
	ErrThreadInactive     = errors.New("conversation is not active")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrForbiddenPairing   = errors.New("forbidden pairing")
	ErrNotMessageOwner    = errors.New("only the sender may delete a message")
	ErrThreadNotFound     = errors.New("conversation not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidMessage     = errors.New("inconsistent message")
)

// ValidationError is raised before any network call when local input is
// rejected.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Field, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ForbiddenError is raised when the caller is not allowed to act on a
// pairing, a thread status or a message. The backend enforces the same rules.
type ForbiddenError struct {
	Reason string
	Err    error
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return e.Err }

// RemoteError wraps a failed call to the remote backend. StatusCode is zero
// for transport failures.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: remote returned %d", e.Op, e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsNetwork reports whether the request never got an HTTP response.
func (e *RemoteError) IsNetwork() bool { return e.StatusCode == 0 }

// PartialLoadError records the sub-fetches of a composite load that failed
// while others succeeded.
type PartialLoadError struct {
	Failures map[string]error
}

func (e *PartialLoadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for source, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", source, err))
	}
	return "partial load: " + strings.Join(parts, "; ")
}

// Add records a failed source.
func (e *PartialLoadError) Add(source string, err error) {
	if e.Failures == nil {
		e.Failures = make(map[string]error)
	}
	e.Failures[source] = err
}

// Empty reports whether no failure was recorded.
func (e *PartialLoadError) Empty() bool { return len(e.Failures) == 0 }

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsForbidden reports whether err is a client-side authorization failure.
func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}
