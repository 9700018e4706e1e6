// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
)

// Config holds common configuration for TUI components.
type Config struct {
	// Accessible switches prompts to plain line-based input.
	Accessible bool
	// Width caps rendered content (0 for auto).
	Width int
	// Output is where components draw.
	Output io.Writer
	// Input is read for key presses and answers. Nil means stdin.
	Input io.Reader
}

// DefaultConfig enables accessible mode when stdin is not a terminal or the
// ACCESSIBLE environment variable is set. Accessible output goes to stderr so
// it survives stdout redirection.
func DefaultConfig() Config {
	accessible := !isInputTerminal() || os.Getenv("ACCESSIBLE") != ""

	var output io.Writer = os.Stdout
	if accessible {
		output = os.Stderr
	}

	return Config{
		Accessible: accessible,
		Output:     output,
	}
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return isInputTerminal() && term.IsTerminal(int(os.Stdout.Fd()))
}

func isInputTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (c Config) output() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	if c.Accessible {
		return os.Stderr
	}
	return os.Stdout
}

func (c Config) width() int {
	if c.Width > 0 {
		return c.Width
	}
	return defaultWidth
}
