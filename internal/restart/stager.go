// SPDX-License-Identifier: MPL-2.0

package restart

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/upkit/upkit/internal/logging"
)

// ErrNotStaged is returned by LaunchAndExit before a successful Stage.
var ErrNotStaged = errors.New("no restart helper staged")

type (
	// Stager writes the restart helper and hands control to it.
	Stager struct {
		flavor      Flavor
		helperDir   string
		waitSeconds int
		launcher    *Launcher
		logger      *log.Logger

		mu     sync.Mutex
		staged string
	}

	// StagerOption configures a Stager.
	StagerOption func(*Stager)
)

// WithFlavor overrides the host script dialect.
func WithFlavor(f Flavor) StagerOption {
	return func(s *Stager) { s.flavor = f }
}

// WithHelperDir writes the helper somewhere other than the install dir.
func WithHelperDir(dir string) StagerOption {
	return func(s *Stager) { s.helperDir = dir }
}

// WithWaitSeconds bounds how long the helper waits for the old process.
func WithWaitSeconds(n int) StagerOption {
	return func(s *Stager) { s.waitSeconds = n }
}

// WithLauncher replaces the spawning and exiting Launcher.
func WithLauncher(l *Launcher) StagerOption {
	return func(s *Stager) { s.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) StagerOption {
	return func(s *Stager) { s.logger = l }
}

// NewStager returns a Stager for the host OS.
func NewStager(opts ...StagerOption) *Stager {
	s := &Stager{
		flavor:      HostFlavor(),
		waitSeconds: DefaultWaitSeconds,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = NewLauncher()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Stage validates plan and writes the helper. On error nothing was written.
func (s *Stager) Stage(plan Plan) error {
	plan = plan.withDefaults()
	script, err := RenderRestart(plan, s.flavor, s.waitSeconds)
	if err != nil {
		return err
	}

	dir := s.helperDir
	if dir == "" {
		dir = plan.InstallDir
	}
	path, err := WriteHelper(dir, script)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.staged = path
	s.mu.Unlock()

	s.logger.Info("restart helper staged",
		"helper", path, "payload", plan.ExtractedPayloadDir, "install_dir", plan.InstallDir)
	return nil
}

// HelperPath returns the staged helper, or "" before Stage succeeds.
func (s *Stager) HelperPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// LaunchAndExit starts the staged helper detached and exits the process.
// It only returns when the launch fails; the process keeps running then.
func (s *Stager) LaunchAndExit() error {
	path := s.HelperPath()
	if path == "" {
		return stagingErr("launch helper", ErrNotStaged)
	}
	if err := s.launcher.Launch(path, s.flavor); err != nil {
		return err
	}
	s.logger.Info("restart helper launched, exiting", "helper", path)
	s.launcher.Exit()
	return nil
}
