package skuvault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no usable credential is available
	ErrNotAuthenticated = errors.New("skuvault: not authenticated")

	// ErrMalformedResponse is returned when a payload cannot be decoded
	ErrMalformedResponse = errors.New("skuvault: malformed response")
)

// StatusError is a response with status >= 400
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// RequestError is the terminal failure of a request after every attempt.
// StatusCode is the last status seen, 0 when the last attempt failed in
// transport.
type RequestError struct {
	Op         string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed after %d attempts (status %d): %v", e.Op, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
