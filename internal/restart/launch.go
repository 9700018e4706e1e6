// SPDX-License-Identifier: MPL-2.0

package restart

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ExitCode is the status the application exits with after handing off to a helper.
const ExitCode = 0

type (
	// StartFunc starts a prepared command without waiting for it.
	StartFunc func(cmd *exec.Cmd) error

	// ExitFunc terminates the current process.
	ExitFunc func(code int)

	// Launcher starts a helper detached from the current process and then
	// exits. Both steps are replaceable so tests never spawn or exit.
	Launcher struct {
		start StartFunc
		exit  ExitFunc
	}

	// LauncherOption configures a Launcher.
	LauncherOption func(*Launcher)
)

// WithStartFunc replaces exec.Cmd.Start.
func WithStartFunc(fn StartFunc) LauncherOption {
	return func(l *Launcher) { l.start = fn }
}

// WithExitFunc replaces os.Exit.
func WithExitFunc(fn ExitFunc) LauncherOption {
	return func(l *Launcher) { l.exit = fn }
}

// NewLauncher returns a Launcher that really spawns and really exits.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		start: func(cmd *exec.Cmd) error { return cmd.Start() },
		exit:  os.Exit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Command builds the detached command that runs the helper at path.
func Command(path string, flavor Flavor) *exec.Cmd {
	var cmd *exec.Cmd
	if flavor == FlavorBatch {
		cmd = exec.Command("cmd.exe", "/C", path)
	} else {
		cmd = exec.Command("/bin/sh", path)
	}
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachedAttr()
	return cmd
}

// Launch starts the helper without waiting for it.
func (l *Launcher) Launch(path string, flavor Flavor) error {
	cmd := Command(path, flavor)
	if err := l.start(cmd); err != nil {
		return stagingErr("launch helper", fmt.Errorf("%s: %w", path, err))
	}
	if cmd.Process != nil && cmd.ProcessState == nil {
		_ = cmd.Process.Release()
	}
	return nil
}

// Exit terminates the current process with ExitCode.
func (l *Launcher) Exit() {
	l.exit(ExitCode)
}
