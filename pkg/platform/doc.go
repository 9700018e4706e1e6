// SPDX-License-Identifier: MPL-2.0

// Package platform holds the small cross-platform facts upkit branches on:
// GOOS names and file names Windows refuses to create.
package platform
