// SPDX-License-Identifier: MPL-2.0

// Package version parses and orders the dotted numeric versions published in
// the remote version file (for example "1.2.3" or "4.0.0.12"), and recognizes
// the all-zero kill sentinel.
//
// Parsing is strict: every component must be a non-negative decimal integer.
// Pre-release tags, build metadata and a leading "v" are rejected, so a
// garbled version file can never be mistaken for a real release.
package version
