// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/upkit/upkit/internal/version"
)

var (
	// ErrAlreadyInProgress is returned when a check or flow is already running.
	ErrAlreadyInProgress = errors.New("update already in progress")
	// ErrFinished is returned once the process is restarting or being wiped.
	ErrFinished = errors.New("update lifecycle finished")
	// ErrNoUpdate is returned by Start when no newer version is known.
	ErrNoUpdate = errors.New("no update available")
)

// FlowError is a failed or cancelled update flow. It carries both versions
// so a report is actionable.
type FlowError struct {
	Phase   State
	Current version.Version
	Latest  version.Version
	Err     error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	return fmt.Sprintf("update %s -> %s failed while %s: %v", e.Current, e.Latest, e.Phase, e.Err)
}

// Unwrap returns the cause.
func (e *FlowError) Unwrap() error {
	return e.Err
}
