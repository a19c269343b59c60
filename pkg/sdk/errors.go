package inkdex

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is() to check.
var (
	// ErrQueryNotFound signals an unknown or expired query ID.
	ErrQueryNotFound = errors.New("inkdex: query not found")
	// ErrInvalidRequest signals a request the server rejected as malformed.
	ErrInvalidRequest = errors.New("inkdex: invalid request")
	// ErrSearchTimeout signals the server-side search budget expired.
	ErrSearchTimeout = errors.New("inkdex: search timed out")
	// ErrFetchInFlight signals Next was called while a fetch is running.
	ErrFetchInFlight = errors.New("inkdex: fetch already in flight")
	// ErrExhausted signals the pager has served every page.
	ErrExhausted = errors.New("inkdex: no more pages")
	// ErrSuperseded signals the fetch was cancelled by newer filters.
	ErrSuperseded = errors.New("inkdex: fetch superseded")
)

// APIError carries a structured error body returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inkdex: api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps well-known statuses to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case 404:
		return ErrQueryNotFound
	case 400:
		return ErrInvalidRequest
	case 504:
		return ErrSearchTimeout
	}
	return nil
}
