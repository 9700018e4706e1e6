// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the upkit command line: version checks, the update
// flow with its progress view, and configuration management.
package cmd
