// Package errs defines the forwarder's error taxonomy.
package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

var (
	// ErrInvalidConfig marks a missing or invalid setting. Fatal at startup.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnauthorized marks a rejected API token. Never retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRetriesExhausted wraps the last transient error after the final attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrStopped is returned by operations on a pipeline that no longer accepts input.
	ErrStopped = errors.New("pipeline stopped")
)

// StatusError is a non-2xx response from the ingest endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses.
func (e *StatusError) Unwrap() error {
	if IsAuthStatus(e.Code) {
		return ErrUnauthorized
	}
	return nil
}

// IsAuthStatus reports whether code is an authorization rejection.
func IsAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsTransient reports whether a delivery failure is worth retrying:
// timeouts, connection failures and any non-auth error status.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
