package domain

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrConflict is returned when a checkpoint write loses a race against
	// another writer for the same thread.
	ErrConflict = errors.New("conversation was modified concurrently")

	// ErrNotSuspended is returned when a review response arrives for a
	// conversation that is not waiting at the review step.
	ErrNotSuspended = errors.New("conversation is not awaiting review")
)

// NotFoundError reports an unknown thread id.
type NotFoundError struct {
	ThreadID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ThreadID)
}

// ValidationError reports a malformed inbound event.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var threadIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateThreadID checks a caller-supplied thread id.
func ValidateThreadID(id string) error {
	if !threadIDRe.MatchString(id) {
		return &ValidationError{Field: "threadId", Message: "must be 1-128 characters of letters, digits, '.', '_' or '-'"}
	}
	return nil
}
