// Package apperr defines the failure kinds shared by the story editor and maps
// them onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned for unknown positions, legacy ids and deck-scoped notes.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a submitted form no longer matches the live note.
	ErrConflict = errors.New("conflict")
)

// TransportError reports a network level failure talking to AnkiConnect or the
// reference site. It is never retried.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError carries the error string AnkiConnect put in its response envelope.
type UpstreamError struct {
	Action  string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ankiconnect %s: %s", e.Action, e.Message)
}

// FormatError means an expected section was missing from a scraped page.
type FormatError struct {
	Key     string
	Section string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("page for %q: section %q not found", e.Key, e.Section)
}

// Status returns the HTTP status code a handler should answer with for err.
// Transport, upstream and format failures, like anything unrecognized, are
// internal errors.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
