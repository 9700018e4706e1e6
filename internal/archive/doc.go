// SPDX-License-Identifier: MPL-2.0

// Package archive unpacks update packages (zip, optionally encrypted with a
// shared passphrase) into a directory tree.
//
// Every entry name is canonicalized and bounds-checked against the destination
// before anything is written, so an archive carrying "../" escapes, absolute
// paths or symlinks is rejected as a whole rather than partially extracted.
//
// The passphrase model offers no real confidentiality: a passphrase baked into
// a shipped binary can be recovered from it. It exists for compatibility with
// packages produced by existing release tooling.
package archive
