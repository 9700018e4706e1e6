// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upkit/upkit/internal/config"
)

// newConfigCommand creates the `upkit config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage upkit configuration",
		Long: `Manage upkit configuration.

Configuration is stored in:
  - Linux: ~/.config/upkit/config.cue
  - macOS: ~/Library/Application Support/upkit/config.cue
  - Windows: %APPDATA%\upkit\config.cue

Every key can be overridden with an UPKIT_ environment variable,
e.g. UPKIT_VERSION_URL or UPKIT_LOG_LEVEL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, path, err := app.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: cfgFile,
		Defaults:       buildDefaults(),
	})
	if err != nil {
		fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
		return err
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)
	if path != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(app.stdout)

	out, err := cfg.TOML()
	if err != nil {
		return err
	}
	fmt.Fprint(app.stdout, out)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, WarningStyle.Render("Warning: ")+err.Error())
	}
	return nil
}

func initConfig(app *App) error {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}

	created, err := config.CreateDefaultConfig(path, buildDefaults())
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", SubtitleStyle.Render("•"), path)
		return nil
	}

	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(app.stdout, "Config file: %s\n", path)
	if cfgFile != "" {
		fmt.Fprintf(app.stdout, "Override (--config): %s\n", cfgFile)
	}
	return nil
}
