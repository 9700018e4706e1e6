// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction classifies every extraction failure.
	ErrExtraction = errors.New("extraction failed")

	// ErrUnsafePath indicates an entry whose path would land outside the destination.
	ErrUnsafePath = errors.New("unsafe entry path")

	// ErrPasswordRequired indicates an encrypted entry and no password.
	ErrPasswordRequired = errors.New("archive is encrypted and no password was supplied")

	// ErrBadPassword indicates an encrypted entry could not be decrypted or authenticated.
	ErrBadPassword = errors.New("wrong password or corrupt encrypted entry")

	// ErrEntryTooLarge indicates an entry exceeded MaxEntryBytes.
	ErrEntryTooLarge = errors.New("entry exceeds size limit")
)

// ExtractionError reports which archive and entry failed. It matches
// ErrExtraction and its cause with errors.Is.
type ExtractionError struct {
	Archive string
	Entry   string // empty for archive-level failures
	Err     error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extracting %s: entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("extracting %s: %v", e.Archive, e.Err)
}

// Unwrap exposes ErrExtraction and the cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}
