package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidReference indicates a foreign id that is not a well-formed identifier.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrReferenceNotFound indicates a well-formed foreign id with no matching entity.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrInvalidTransition indicates a status change not permitted from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState indicates a source document that cannot be converted in its current status.
	ErrInvalidState = fmt.Errorf("%w: source document not in a convertible status", ErrInvalidTransition)
	// ErrForbidden indicates an authenticated principal not authorized for the document or action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent modification of the same document.
	ErrConflict = errors.New("document modified concurrently")
	// ErrDuplicateKey indicates a document number collision.
	ErrDuplicateKey = errors.New("duplicate document number")
)

// ReferenceError identifies the foreign reference that failed to resolve.
type ReferenceError struct {
	Kind string
	ID   string
	Err  error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// Invalidf wraps ErrInvalidInput with a formatted detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
