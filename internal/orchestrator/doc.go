// SPDX-License-Identifier: MPL-2.0

// Package orchestrator drives one application's self-update: check the
// published version, and on consent download, extract and stage the new
// release before handing off to the restart helper.
//
// An Orchestrator owns a single lifecycle state. At most one check or update
// flow runs at a time; a second attempt is rejected with ErrAlreadyInProgress
// instead of being queued. The download and extraction run on a worker
// goroutine and report back only through the flow's event channel, so the
// presentation layer consumes progress on its own goroutine.
//
// The sentinel version 0.0.0 takes precedence over everything else: the
// orchestrator triggers the kill switch and never reports an update.
package orchestrator
