// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/upkit/upkit/internal/archive"
	"github.com/upkit/upkit/internal/config"
	"github.com/upkit/upkit/internal/issue"
	"github.com/upkit/upkit/internal/orchestrator"
	"github.com/upkit/upkit/internal/restart"
	"github.com/upkit/upkit/internal/transfer"
	"github.com/upkit/upkit/internal/tui"
	"github.com/upkit/upkit/internal/version"
)

// exitCancelled mirrors the shell convention for SIGINT.
const exitCancelled = 130

type (
	// flowDeps is what a command needs to check for and install an update.
	flowDeps struct {
		cfg       *config.Config
		stdout    io.Writer
		stderr    io.Writer
		orch      *orchestrator.Orchestrator
		presenter orchestrator.Presenter
		// view is nil when output is not a terminal.
		view *tui.ProgressView
	}

	// updateParams bundles the dependencies and flags for the update command,
	// enabling runUpdate to be tested without a real Cobra command.
	updateParams struct {
		flowDeps
		yes bool // --yes flag: skip confirmation prompt
	}

	// plainProgress prints flow events as lines when no progress view is shown.
	plainProgress struct {
		w           io.Writer
		latest      version.Version
		lastPercent int
	}
)

func newUpdateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest release",
		Long: `Download and install the latest release.

The update command checks the published version, shows the change log and
asks before downloading. Once the package is unpacked a helper script waits
for upkit to exit, replaces the installed files and starts the new version.

Pressing esc or ctrl+c during the download cancels the update.`,
		Example: `  # Update after confirming
  upkit update

  # Skip confirmation prompt
  upkit update --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			yesFlag, _ := cmd.Flags().GetBool("yes")

			deps, closeLog, err := app.prepareFlow(cmd.Context(), "Updating "+config.AppName)
			if err != nil {
				return app.fail(err)
			}
			defer closeLog()

			if err := runUpdate(cmd.Context(), updateParams{flowDeps: deps, yes: yesFlag}); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	return cmd
}

// prepareFlow loads the session and builds the orchestrator, with a progress
// view when the terminal allows one. The returned func closes the log.
func (a *App) prepareFlow(ctx context.Context, title string) (flowDeps, func(), error) {
	s, err := a.load(ctx)
	if err != nil {
		return flowDeps{}, nil, err
	}
	closeLog := func() {
		if err := s.closeLog.Close(); err != nil {
			fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+err.Error())
		}
	}

	var (
		view   *tui.ProgressView
		before func()
	)
	if a.interactive() {
		view = tui.NewProgressView(title, tui.Config{Output: a.stdout})
		before = view.Release
	}

	presenter := a.presenter()
	orch, err := a.newOrchestrator(s, presenter, before)
	if err != nil {
		closeLog()
		return flowDeps{}, nil, err
	}

	return flowDeps{
		cfg:       s.cfg,
		stdout:    a.stdout,
		stderr:    a.stderr,
		orch:      orch,
		presenter: presenter,
		view:      view,
	}, closeLog, nil
}

// fail prints err with remediation hints and maps it to an exit code.
func (a *App) fail(err error) error {
	fmt.Fprintln(a.stderr, formatUpdateError(err))
	return &ExitError{Code: classifyUpdateExitCode(err), Err: err}
}

// runUpdate is the core update logic, separated from Cobra for testability.
//
// Flow:
//  1. Check the published version (the kill sentinel wipes and exits here).
//  2. If already up to date, print status and return.
//  3. Unless --yes, show the change log and ask.
//  4. Download, extract and stage; the helper takes over on success.
func runUpdate(ctx context.Context, p updateParams) error {
	res, err := p.orch.Check(ctx)
	if err != nil {
		return err
	}
	if res.RemoteWipe {
		return nil
	}

	printVersions(p.stdout, res)
	if !res.UpdateAvailable {
		fmt.Fprintln(p.stdout, "\n"+SuccessStyle.Render("Already up to date."))
		return nil
	}

	if !p.yes {
		confirmed, err := p.presenter.Confirm(ctx, orchestrator.Prompt{
			Current:   res.Current,
			Latest:    res.Latest,
			Changelog: p.orch.Changelog(ctx, res.Latest),
		})
		if err != nil {
			return fmt.Errorf("confirmation prompt: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(p.stdout, SubtitleStyle.Render("Update skipped."))
			return nil
		}
	}

	return runFlow(ctx, p.flowDeps)
}

// runFlow starts the update flow and follows it with the progress view, or
// with plain lines when there is no terminal.
func runFlow(ctx context.Context, d flowDeps) error {
	if d.view != nil {
		flow, err := d.orch.Start(ctx)
		if err != nil {
			return err
		}
		return d.view.Run(ctx, flow)
	}

	out := &plainProgress{w: d.stdout, latest: d.orch.Latest(), lastPercent: -1}
	return d.orch.BeginUpdateFlow(ctx, out.state, out.progress)
}

func printVersions(w io.Writer, res *orchestrator.CheckResult) {
	fmt.Fprintf(w, "Current version: %s\n", CmdStyle.Render(res.Current.String()))
	fmt.Fprintf(w, "Latest version:  %s\n", CmdStyle.Render(res.Latest.String()))
}

func (p *plainProgress) state(s orchestrator.State) {
	switch s {
	case orchestrator.StateDownloading:
		fmt.Fprintf(p.w, "\nDownloading %s %s...\n", config.AppName, p.latest)
	case orchestrator.StateExtracting:
		fmt.Fprintln(p.w, "Extracting package...")
	case orchestrator.StateStaging:
		fmt.Fprintln(p.w, "Preparing restart...")
	case orchestrator.StateRestarting:
		fmt.Fprintln(p.w, SuccessStyle.Render(fmt.Sprintf("Restarting into %s", p.latest)))
	}
}

// progress prints a download line every ten percent (every report when the
// size is unknown) and one line when extraction completes.
func (p *plainProgress) progress(ev orchestrator.Event) {
	switch {
	case ev.Transfer != nil:
		t := *ev.Transfer
		if !t.Indeterminate() {
			step := t.Percent / 10
			if step == p.lastPercent {
				return
			}
			p.lastPercent = step
			fmt.Fprintf(p.w, "  %3d%%  %s\n", t.Percent, tui.TransferDetail(t))
			return
		}
		fmt.Fprintf(p.w, "  %s\n", tui.TransferDetail(t))
	case ev.Extraction != nil:
		x := *ev.Extraction
		if x.Processed == x.Total {
			fmt.Fprintf(p.w, "  %d files extracted\n", x.Total)
		}
	}
}

// classifyUpdateExitCode maps an update error to the process exit code.
// Problems the user can fix exit with 1, cancellation with 130 and
// network or unexpected failures with 2.
func classifyUpdateExitCode(err error) int {
	var ae *issue.ActionableError
	switch {
	case errors.Is(err, transfer.ErrCancelled):
		return exitCancelled
	case errors.Is(err, os.ErrPermission):
		return 1
	case errors.Is(err, transfer.ErrNetwork):
		return 2
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, version.ErrMalformedVersion),
		errors.Is(err, archive.ErrExtraction),
		errors.Is(err, restart.ErrStaging),
		errors.Is(err, orchestrator.ErrAlreadyInProgress),
		errors.As(err, &ae):
		return 1
	default:
		return 2
	}
}

// formatUpdateError produces a user-friendly error message with remediation
// guidance tailored to the error type.
func formatUpdateError(err error) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}

	switch {
	case errors.Is(err, transfer.ErrCancelled):
		return WarningStyle.Render("Update cancelled.") + "\nNothing was changed. Run 'upkit update' to try again."
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("%s\n\nupkit cannot write to its install directory.\nRun the update with elevated privileges or fix the directory's permissions.", err)
	case errors.Is(err, version.ErrMalformedVersion):
		return fmt.Sprintf("%s\n\nThe published version file is not a dotted version number.\nThe release may be mid-publish; try again later.", err)
	case errors.Is(err, transfer.ErrNetwork):
		return fmt.Sprintf("%s\n\nCheck your network connection and try again.\nThe endpoints are set by version_url and package_url in your config.", err)
	case errors.Is(err, archive.ErrPasswordRequired), errors.Is(err, archive.ErrBadPassword):
		return fmt.Sprintf("%s\n\nThe package password does not match this build.\nSet package_password in your config or reinstall upkit.", err)
	case errors.Is(err, archive.ErrUnsafePath):
		return fmt.Sprintf("%s\n\nThe package contains paths outside the install directory and was rejected.\nReport this to the publisher.", err)
	case errors.Is(err, archive.ErrExtraction):
		return fmt.Sprintf("%s\n\nThe downloaded package could not be unpacked. Try again;\nif this persists the published package may be corrupt.", err)
	case errors.Is(err, restart.ErrStaging):
		return fmt.Sprintf("%s\n\nThe restart helper could not be prepared.\nCheck that the install directory is writable and has free space.", err)
	default:
		return err.Error()
	}
}
