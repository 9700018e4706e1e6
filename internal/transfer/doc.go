// SPDX-License-Identifier: MPL-2.0

// Package transfer fetches the remote version text and streams update
// packages to disk.
//
// Downloads report progress through a callback at a bounded rate (at most once
// per elapsed second, plus on whole-percent changes) and honour context
// cancellation. A cancelled transfer always reports ErrCancelled, never
// ErrNetwork, and never leaves a partial package behind: data is written to a
// ".part" file that is removed on any failure and renamed into place only
// after the last byte arrived.
package transfer
