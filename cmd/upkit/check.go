// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/upkit/upkit/internal/config"
)

// checkParams bundles the dependencies and flags for the check command.
type checkParams struct {
	flowDeps
	interactive bool          // --interactive: prompt and update on consent
	delay       time.Duration // wait before checking (--delay)
}

func newCheckCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check for a newer release",
		Long: `Check the published version against the installed one.

With --interactive the check behaves like a startup check: nothing is printed
unless a newer release exists, in which case the change log is shown and the
update starts once confirmed. --delay waits ui.startup_delay first so the
application can finish starting.`,
		Example: `  # Show installed and published versions
  upkit check

  # Startup check from a launcher script
  upkit check --interactive --delay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			interactiveFlag, _ := cmd.Flags().GetBool("interactive")
			delayFlag, _ := cmd.Flags().GetBool("delay")

			deps, closeLog, err := app.prepareFlow(cmd.Context(), "Updating "+config.AppName)
			if err != nil {
				return app.fail(err)
			}
			defer closeLog()

			p := checkParams{flowDeps: deps, interactive: interactiveFlag}
			if delayFlag {
				p.delay = deps.cfg.UI.StartupDelay
			}

			if err := runCheck(cmd.Context(), p); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("interactive", "i", false, "Ask to install a newer release")
	cmd.Flags().Bool("delay", false, "Wait ui.startup_delay before checking")

	return cmd
}

// runCheck is the core check logic, separated from Cobra for testability.
func runCheck(ctx context.Context, p checkParams) error {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if p.interactive {
		if !p.orch.CheckInteractive(ctx) {
			return nil
		}
		return runFlow(ctx, p.flowDeps)
	}

	res, err := p.orch.Check(ctx)
	if err != nil {
		return err
	}
	if res.RemoteWipe {
		return nil
	}

	printVersions(p.stdout, res)
	if !res.UpdateAvailable {
		fmt.Fprintln(p.stdout, "\n"+SuccessStyle.Render("Up to date."))
		return nil
	}
	fmt.Fprintf(p.stdout, "\n%s\n", WarningStyle.Render(fmt.Sprintf("An update is available: %s → %s", res.Current, res.Latest)))
	fmt.Fprintln(p.stdout, "Run 'upkit update' to install.")
	return nil
}
