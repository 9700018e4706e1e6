// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/upkit/upkit/internal/issue"
)

var (
	// Version is the release version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// PackagePassphrase decrypts release packages (set via -ldflags). It ships
	// inside the binary and only keeps casual readers out of the package.
	PackagePassphrase = ""
	// DefaultVersionURL is the version file baked into the build (set via -ldflags).
	DefaultVersionURL = ""
	// DefaultPackageURL is the release package baked into the build (set via -ldflags).
	DefaultPackageURL = ""

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "upkit",
		Short: "Keep an installation up to date",
		Long: TitleStyle.Render("upkit") + SubtitleStyle.Render(" - Keep an installation up to date") + `

upkit checks a published version file, downloads the release package,
unpacks it and hands over to a small helper script that swaps the files
and restarts the application.

` + SubtitleStyle.Render("Examples:") + `
  upkit check               Show the installed and published versions
  upkit check -i --delay    Startup check that asks before updating
  upkit update              Download and install the latest release
  upkit config show         Show current configuration`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/upkit/config.cue)")

	rootCmd.AddCommand(
		newCheckCommand(app),
		newUpdateCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(app.stdout, getVersionString())
			return nil
		},
	}
}
