// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/upkit/upkit/internal/config"
	"github.com/upkit/upkit/internal/issue"
	"github.com/upkit/upkit/internal/logging"
	"github.com/upkit/upkit/internal/orchestrator"
	"github.com/upkit/upkit/internal/restart"
	"github.com/upkit/upkit/internal/transfer"
	"github.com/upkit/upkit/internal/tui"
	"github.com/upkit/upkit/internal/version"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and builds its orchestrator through it.
	App struct {
		Config config.Provider

		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer

		// extra is appended to the production orchestrator options.
		extra []orchestrator.Option
		// interactive reports whether the progress view can take the terminal.
		interactive func() bool
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config      config.Provider
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
		Options     []orchestrator.Option
		Interactive func() bool
	}

	// session is what one command invocation needs after configuration loads.
	session struct {
		cfg        *config.Config
		configPath string
		logger     *log.Logger
		closeLog   logging.Closer
	}

	// handoffStager runs before ahead of LaunchAndExit so a full-screen view
	// can restore the terminal before the process exits.
	handoffStager struct {
		orchestrator.Stager
		before func()
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:      deps.Config,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		extra:       deps.Options,
		interactive: deps.Interactive,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	if app.interactive == nil {
		app.interactive = tui.IsInteractive
	}
	return app
}

// LaunchAndExit implements orchestrator.Stager.
func (s handoffStager) LaunchAndExit() error {
	if s.before != nil {
		s.before()
	}
	return s.Stager.LaunchAndExit()
}

// buildDefaults returns the configuration defaults with the endpoints and
// passphrase baked into this build.
func buildDefaults() *config.Config {
	cfg := config.DefaultConfig()
	cfg.VersionURL = DefaultVersionURL
	cfg.PackageURL = DefaultPackageURL
	cfg.PackagePassword = PackagePassphrase
	return cfg
}

// load reads the configuration and opens the logger. The caller closes the
// session's log.
func (a *App) load(ctx context.Context) (*session, error) {
	cfg, path, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: cfgFile,
		Defaults:       buildDefaults(),
	})
	if err != nil {
		return nil, err
	}

	verboseMode := verbose || cfg.UI.Verbose
	var console io.Writer = io.Discard
	if verboseMode {
		console = a.stderr
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: verboseMode,
		File:    cfg.Log.File,
		Console: console,
	})
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("open log").
			WithResource(cfg.Log.File).
			WithSuggestion("Check log.level in your config (debug, info, warn, error)").
			Wrap(err).
			BuildError()
	}

	return &session{cfg: cfg, configPath: path, logger: logger, closeLog: closeLog}, nil
}

// currentVersion parses the version this binary was built as.
func currentVersion() (version.Version, error) {
	v, err := version.Parse(Version)
	if err != nil {
		return version.Version{}, issue.NewErrorContext().
			WithOperation("determine the running version").
			WithSuggestion("Build with -ldflags \"-X github.com/upkit/upkit/cmd/upkit.Version=1.2.3\"").
			Wrap(err).
			BuildError()
	}
	return v, nil
}

// newOrchestrator builds the orchestrator for s. before, when set, runs right
// before the restart helper takes over.
func (a *App) newOrchestrator(s *session, presenter orchestrator.Presenter, before func()) (*orchestrator.Orchestrator, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("prepare update").
			WithResource(s.configPath).
			WithSuggestion("Set version_url and package_url in config.cue").
			WithSuggestion("Or export UPKIT_VERSION_URL and UPKIT_PACKAGE_URL").
			WithSuggestion("Run 'upkit config init' to create a config file").
			Wrap(err).
			BuildError()
	}

	current, err := currentVersion()
	if err != nil {
		return nil, err
	}

	installDir, err := s.cfg.ResolvedInstallDir()
	if err != nil {
		return nil, fmt.Errorf("resolving install dir: %w", err)
	}

	oc := orchestrator.Config{
		Descriptor: orchestrator.Descriptor{
			Current:    current,
			VersionURL: s.cfg.VersionURL,
			PackageURL: s.cfg.PackageURL,
		},
		InstallDir:      installDir,
		PackageFile:     s.cfg.PackageFile,
		PayloadDir:      s.cfg.PayloadDir,
		Password:        s.cfg.PackagePassword,
		ReplacePatterns: s.cfg.ReplacePatterns,
	}

	client := transfer.NewClient(
		transfer.WithTimeout(s.cfg.Timeout),
		transfer.WithRetryMax(s.cfg.RetryMax),
		transfer.WithUserAgent(config.AppName+"/"+Version),
		transfer.WithLogger(logging.Component(s.logger, "transfer")),
	)
	stager := handoffStager{
		Stager: restart.NewStager(restart.WithLogger(logging.Component(s.logger, "restart"))),
		before: before,
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logging.Component(s.logger, "orchestrator")),
		orchestrator.WithTransport(client),
		orchestrator.WithStager(stager),
	}
	if presenter != nil {
		opts = append(opts, orchestrator.WithPresenter(presenter))
	}
	opts = append(opts, a.extra...)

	return orchestrator.New(oc, opts...)
}

// presenter builds the prompt presenter. Without a terminal it falls back to
// line-based prompts on stderr.
func (a *App) presenter() *tui.Presenter {
	cfg := tui.Config{
		Accessible: !a.interactive(),
		Output:     a.stderr,
	}
	if cfg.Accessible {
		cfg.Input = a.stdin
	}
	return tui.NewPresenter(config.AppName, cfg)
}
