package governor

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed settles handles for jobs that were still queued when the
	// scheduler shut down, and for jobs scheduled after Close().
	ErrClosed = errors.New("governor closed")

	// ErrInvalidConfig wraps construction-time validation failures.
	ErrInvalidConfig = errors.New("invalid governor config")

	// ErrNilTask settles the handle when Schedule is called with a nil task.
	ErrNilTask = errors.New("task is nil")
)

// StatusError is a task failure that carries an HTTP-like status code.
//
// Tasks that talk to HTTP endpoints should return (or wrap) a StatusError on
// non-2xx responses so the backoff policy can apply status-aware floors
// (429, 503). Any other error is retried with the plain exponential delay.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// StatusFromError extracts the HTTP status carried by err, if any.
func StatusFromError(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
