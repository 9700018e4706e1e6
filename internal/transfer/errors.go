// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNetwork classifies timeouts, DNS failures, connection errors and
	// unexpected HTTP statuses. Callers may retry.
	ErrNetwork = errors.New("network error")

	// ErrCancelled indicates the caller cancelled the transfer. It is not a failure.
	ErrCancelled = errors.New("transfer cancelled")

	// errStalled is the cancellation cause used when no bytes arrive within the timeout.
	errStalled = errors.New("no data received within timeout")
)

// NetworkError describes a failed request. It matches both ErrNetwork and the
// underlying cause with errors.Is.
type NetworkError struct {
	URL        string // Redacted request URL
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("request to %s failed: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("request to %s failed", e.URL)
	}
}

// Unwrap exposes ErrNetwork and the cause.
func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}

// redactURL strips credentials, query and fragment for safe inclusion in messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
