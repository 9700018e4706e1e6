// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/upkit/upkit/internal/archive"
	"github.com/upkit/upkit/internal/killswitch"
	"github.com/upkit/upkit/internal/logging"
	"github.com/upkit/upkit/internal/restart"
	"github.com/upkit/upkit/internal/transfer"
	"github.com/upkit/upkit/internal/version"
)

type (
	// Orchestrator owns one installation's update lifecycle.
	Orchestrator struct {
		cfg Config

		state atomic.Int32

		mu     sync.Mutex
		latest version.Version

		transport  Transport
		extractor  Extractor
		stager     Stager
		killSwitch KillSwitch
		presenter  Presenter
		planner    Planner
		logger     *log.Logger
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	// CheckResult is the outcome of a completed version check.
	CheckResult struct {
		Current         version.Version
		Latest          version.Version
		UpdateAvailable bool
		// RemoteWipe is set when the kill sentinel was published.
		RemoteWipe bool
	}
)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *Orchestrator) { o.transport = t }
}

// WithExtractor replaces the archive extractor.
func WithExtractor(e Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithStager replaces the restart stager.
func WithStager(s Stager) Option {
	return func(o *Orchestrator) { o.stager = s }
}

// WithKillSwitch replaces the kill switch.
func WithKillSwitch(k KillSwitch) Option {
	return func(o *Orchestrator) { o.killSwitch = k }
}

// WithPresenter sets the interactive presenter. Without one, interactive
// checks decline every update.
func WithPresenter(p Presenter) Option {
	return func(o *Orchestrator) { o.presenter = p }
}

// WithPlanner replaces how the relaunch target is described.
func WithPlanner(p Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New validates cfg and returns an idle Orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid update config: %w", err)
	}

	o := &Orchestrator{cfg: cfg}
	o.state.Store(int32(StateIdle))
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.transport == nil {
		o.transport = transfer.NewClient(transfer.WithLogger(logging.Component(o.logger, "transfer")))
	}
	if o.extractor == nil {
		o.extractor = ExtractorFunc(archive.Extract)
	}
	if o.stager == nil {
		o.stager = restart.NewStager(restart.WithLogger(logging.Component(o.logger, "restart")))
	}
	if o.killSwitch == nil {
		o.killSwitch = killswitch.New(killswitch.WithLogger(logging.Component(o.logger, "killswitch")))
	}
	if o.presenter == nil {
		o.presenter = declinePresenter{}
	}
	if o.planner == nil {
		o.planner = func(payloadDir string) (restart.Plan, error) {
			plan, err := restart.CurrentProcessPlan(payloadDir, cfg.ReplacePatterns)
			if err != nil {
				return restart.Plan{}, err
			}
			plan.InstallDir = cfg.InstallDir
			return plan, nil
		}
	}

	return o, nil
}

// State returns the current state (atomic, lock-free read).
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Config returns the validated configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Latest returns the newest version seen by a successful check.
func (o *Orchestrator) Latest() version.Version {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// enter moves to the busy state to if the current state admits it.
func (o *Orchestrator) enter(to State, admits func(State) bool) error {
	for {
		cur := o.State()
		switch {
		case cur.IsFinal():
			return ErrFinished
		case cur.IsBusy():
			return ErrAlreadyInProgress
		case !admits(cur):
			return fmt.Errorf("%w (state %s)", ErrNoUpdate, cur)
		}
		if o.state.CompareAndSwap(int32(cur), int32(to)) {
			o.logger.Debug("state", "from", cur, "to", to)
			return nil
		}
	}
}

func (o *Orchestrator) set(to State) {
	from := State(o.state.Swap(int32(to)))
	o.logger.Debug("state", "from", from, "to", to)
}

// Check fetches the published version and classifies it. The kill sentinel
// triggers the kill switch before anything else and never yields an update.
func (o *Orchestrator) Check(ctx context.Context) (*CheckResult, error) {
	if err := o.enter(StateCheckingVersion, func(State) bool { return true }); err != nil {
		return nil, err
	}

	text, err := o.transport.FetchText(ctx, o.cfg.VersionURL)
	if err != nil {
		o.set(StateCheckFailed)
		return nil, fmt.Errorf("checking for update: %w", err)
	}

	remote, err := version.Parse(text)
	if err != nil {
		o.set(StateCheckFailed)
		return nil, fmt.Errorf("checking for update: %w", err)
	}

	res := &CheckResult{Current: o.cfg.Current, Latest: remote}

	if version.IsKillSentinel(remote) {
		res.RemoteWipe = true
		o.set(StateRemoteWipeTriggered)
		o.logger.Warn("kill sentinel published", "version_url", o.cfg.VersionURL)
		if err := o.killSwitch.Trigger(ctx, o.cfg.InstallDir); err != nil {
			return res, fmt.Errorf("triggering remote wipe: %w", err)
		}
		return res, nil
	}

	o.mu.Lock()
	o.latest = remote
	o.mu.Unlock()

	res.UpdateAvailable = version.IsUpdateAvailable(o.cfg.Current, remote)
	if res.UpdateAvailable {
		o.set(StateUpdateAvailable)
	} else {
		o.set(StateUpToDate)
	}
	o.logger.Info("version checked", "current", o.cfg.Current, "latest", remote, "update", res.UpdateAvailable)
	return res, nil
}

// CheckSilently reports whether an update is available. It never surfaces
// UI and never fails: every error reads as "no update".
func (o *Orchestrator) CheckSilently(ctx context.Context) bool {
	res, err := o.Check(ctx)
	if err != nil {
		o.logger.Debug("silent check failed", "err", err)
		return false
	}
	return res.UpdateAvailable
}

// CheckInteractive checks, fetches the change log and asks the Presenter.
// It returns whether the user consented. Unreachable servers decline without
// prompting; a malformed published version is reported first.
func (o *Orchestrator) CheckInteractive(ctx context.Context) bool {
	res, err := o.Check(ctx)
	if err != nil {
		if errors.Is(err, version.ErrMalformedVersion) {
			o.presenter.ReportError(err)
		}
		o.logger.Debug("interactive check failed", "err", err)
		return false
	}
	if !res.UpdateAvailable {
		return false
	}

	ok, err := o.presenter.Confirm(ctx, Prompt{
		Current:   res.Current,
		Latest:    res.Latest,
		Changelog: o.Changelog(ctx, res.Latest),
	})
	if err != nil {
		o.logger.Debug("confirmation failed", "err", err)
		return false
	}
	return ok
}

// Changelog fetches the change log for latest, falling back to
// DefaultChangelog on any failure.
func (o *Orchestrator) Changelog(ctx context.Context, latest version.Version) string {
	u, err := ChangelogURL(o.cfg.VersionURL, latest)
	if err != nil {
		return DefaultChangelog
	}
	text, err := o.transport.FetchText(ctx, u)
	if err != nil || text == "" {
		o.logger.Debug("no change log", "url", u, "err", err)
		return DefaultChangelog
	}
	return text
}
