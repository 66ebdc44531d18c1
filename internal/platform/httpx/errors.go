// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// ErrUnauthorized marks a request without a verifiable principal.
var ErrUnauthorized = errors.New("unauthorized")

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrReferenceNotFound), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInvalidTransition),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrDuplicateKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "")
		return
	}
	Problem(w, status, titleFor(err, status), err.Error())
}

func titleFor(err error, status int) string {
	switch {
	case errors.Is(err, shared.ErrInvalidReference):
		return "Invalid Reference"
	case errors.Is(err, shared.ErrReferenceNotFound):
		return "Reference Not Found"
	case errors.Is(err, shared.ErrInvalidState):
		return "Invalid State"
	case errors.Is(err, shared.ErrInvalidTransition):
		return "Invalid Transition"
	case errors.Is(err, shared.ErrDuplicateKey):
		return "Duplicate"
	case errors.Is(err, shared.ErrConflict):
		return "Conflict"
	}
	return http.StatusText(status)
}
