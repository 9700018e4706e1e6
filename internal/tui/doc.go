// SPDX-License-Identifier: MPL-2.0

// Package tui renders the interactive side of an update: the consent prompt,
// the changelog, and a progress view that follows a running update flow.
//
// Prompts are built on charmbracelet/huh and fall back to its accessible
// line mode when stdin is not a terminal. The progress view is a Bubble Tea
// program fed by the flow's event channel.
package tui
