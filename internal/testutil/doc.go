// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test fixtures shared across packages: a fake
// clock, an in-memory zip builder, a counting file server, and Must* file
// helpers that fail the test instead of returning errors.
package testutil
