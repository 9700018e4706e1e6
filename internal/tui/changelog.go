// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWidth = 80

// RenderChangelog renders changelog text as terminal markdown wrapped to width.
// Rendering problems fall back to the trimmed plain text.
func RenderChangelog(text string, width int) string {
	plain := strings.TrimSpace(text)
	if plain == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plain
	}

	out, err := renderer.Render(plain)
	if err != nil {
		return plain
	}
	return strings.TrimRight(out, "\n")
}
