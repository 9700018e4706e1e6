// SPDX-License-Identifier: MPL-2.0

// Package killswitch wipes an installation when the publisher announces the
// sentinel version 0.0.0. The wipe is irreversible and asks nobody.
package killswitch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"

	"github.com/upkit/upkit/internal/logging"
	"github.com/upkit/upkit/internal/restart"
	"github.com/upkit/upkit/pkg/platform"
)

type (
	// Switch stages and launches the wipe helper.
	Switch struct {
		flavor      restart.Flavor
		waitSeconds int
		launcher    *restart.Launcher
		logger      *log.Logger
		pid         int
		processName string
	}

	// Option configures a Switch.
	Option func(*Switch)
)

// WithFlavor overrides the host script dialect.
func WithFlavor(f restart.Flavor) Option {
	return func(s *Switch) { s.flavor = f }
}

// WithLauncher replaces the spawning and exiting launcher.
func WithLauncher(l *restart.Launcher) Option {
	return func(s *Switch) { s.launcher = l }
}

// WithWaitSeconds bounds how long the helper waits for this process.
func WithWaitSeconds(n int) Option {
	return func(s *Switch) { s.waitSeconds = n }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Switch) { s.logger = l }
}

// WithProcess overrides the process the helper waits for.
func WithProcess(pid int, name string) Option {
	return func(s *Switch) {
		s.pid = pid
		s.processName = name
	}
}

// New returns a Switch targeting the current process.
func New(opts ...Option) *Switch {
	s := &Switch{
		flavor:      restart.HostFlavor(),
		waitSeconds: restart.DefaultWaitSeconds,
		pid:         os.Getpid(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.processName == "" {
		s.processName = currentProcessName()
	}
	if s.launcher == nil {
		s.launcher = restart.NewLauncher()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Trigger writes the wipe helper into installDir, launches it detached and
// exits. It returns only when the helper could not be staged or launched.
func (s *Switch) Trigger(ctx context.Context, installDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs, err := filepath.Abs(installDir)
	if err != nil {
		return fmt.Errorf("resolving install dir: %w", err)
	}

	script, err := restart.RenderWipe(restart.WipePlan{
		PID:         s.pid,
		ProcessName: s.processName,
		InstallDir:  abs,
	}, s.flavor, s.waitSeconds)
	if err != nil {
		return err
	}

	path, err := restart.WriteHelper(abs, script)
	if err != nil {
		return err
	}

	s.logger.Warn("remote kill switch triggered, wiping installation", "install_dir", abs, "helper", path)

	if err := s.launcher.Launch(path, s.flavor); err != nil {
		_ = os.Remove(path)
		return err
	}
	s.launcher.Exit()
	return nil
}

func currentProcessName() string {
	exe, err := os.Executable()
	if err != nil {
		if runtime.GOOS == platform.Windows {
			return "upkit.exe"
		}
		return "upkit"
	}
	return filepath.Base(exe)
}
