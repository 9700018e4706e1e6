// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"
)

const (
	// StateIdle is the initial state.
	StateIdle State = iota
	// StateCheckingVersion means the remote version file is being fetched.
	StateCheckingVersion
	// StateUpToDate means the last check found nothing newer.
	StateUpToDate
	// StateUpdateAvailable means the last check found a newer version.
	StateUpdateAvailable
	// StateRemoteWipeTriggered is terminal: the kill sentinel was published.
	StateRemoteWipeTriggered
	// StateCheckFailed means the last check failed; checking again is allowed.
	StateCheckFailed
	// StateDownloading means the package is being transferred.
	StateDownloading
	// StateExtracting means the package is being unpacked.
	StateExtracting
	// StateStaging means the restart helper is being written.
	StateStaging
	// StateRestarting is terminal: the helper was launched and the process is exiting.
	StateRestarting
	// StateFailed means a flow failed; the error was reported and nothing retries it.
	StateFailed
	// StateCancelled means the user cancelled the download.
	StateCancelled
)

// ErrInvalidState is returned when a State value is not one of the defined states.
var ErrInvalidState = errors.New("invalid state")

type (
	// State is the orchestrator's lifecycle state.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	InvalidStateError struct {
		Value State
	}
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingVersion:
		return "checking version"
	case StateUpToDate:
		return "up to date"
	case StateUpdateAvailable:
		return "update available"
	case StateRemoteWipeTriggered:
		return "remote wipe triggered"
	case StateCheckFailed:
		return "check failed"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateStaging:
		return "staging"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d", e.Value)
}

// Unwrap returns ErrInvalidState.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns an error wrapping ErrInvalidState for unknown values.
func (s State) Validate() error {
	if s < StateIdle || s > StateCancelled {
		return &InvalidStateError{Value: s}
	}
	return nil
}

// IsBusy reports whether a check or flow is running.
func (s State) IsBusy() bool {
	switch s {
	case StateCheckingVersion, StateDownloading, StateExtracting, StateStaging:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the process is about to go away; no further
// check or flow is accepted.
func (s State) IsFinal() bool {
	return s == StateRestarting || s == StateRemoteWipeTriggered
}

// IsTerminal reports whether a flow ended in s.
func (s State) IsTerminal() bool {
	switch s {
	case StateRestarting, StateRemoteWipeTriggered, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}
