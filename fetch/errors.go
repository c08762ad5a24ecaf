package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// RedirectError reports that the server redirected away from the requested
// resource. tululu does this instead of answering 404 for unknown ids.
type RedirectError struct {
	Origin string
	Final  string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect from %s to %s", e.Origin, e.Final)
}

// NetworkError indicates a connection-level failure, including timeouts.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("timeout fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("connection error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline rather than a refused
// or broken connection.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusError indicates a completed request with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}
