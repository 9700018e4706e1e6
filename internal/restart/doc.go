// SPDX-License-Identifier: MPL-2.0

// Package restart stages the external helper that swaps an application's
// files while the application itself is not running, then relaunches it.
//
// A running program cannot overwrite its own locked executable and libraries,
// so the swap happens in a generated script launched as a detached process
// right before the current process exits. The script is rendered from a
// template with every path passed as data, validated before it is written,
// and kept to five steps: wait for the old process, delete the old files,
// move the payload in, relaunch, delete itself. Once launched its outcome is
// unobservable, so everything that can be checked is checked in Stage.
//
// The same machinery renders the wipe helper used by the remote kill switch.
package restart
