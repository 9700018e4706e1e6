// SPDX-License-Identifier: MPL-2.0

package restart

import (
	"errors"
	"fmt"
)

// ErrStaging classifies failures to validate, write or launch a helper.
// Nothing in the install directory has been touched when it is returned.
var ErrStaging = errors.New("staging failed")

// StagingError names the staging step that failed.
type StagingError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StagingError) Error() string {
	return fmt.Sprintf("staging restart helper: %s: %v", e.Op, e.Err)
}

// Unwrap exposes ErrStaging and the cause.
func (e *StagingError) Unwrap() []error {
	return []error{ErrStaging, e.Err}
}

func stagingErr(op string, err error) error {
	return &StagingError{Op: op, Err: err}
}
