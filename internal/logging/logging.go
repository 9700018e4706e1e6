// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured loggers shared by the updater
// components. Console output goes to stderr; an optional rotating log file
// keeps a trace of the last update flow after the process has been replaced.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxSizeMB is the size at which the log file is rotated.
	DefaultMaxSizeMB = 5
	// DefaultMaxBackups is how many rotated log files are kept.
	DefaultMaxBackups = 3
)

type (
	// Options configures New.
	Options struct {
		// Level is a charmbracelet/log level name ("debug", "info", "warn", "error").
		// Empty means "info", or "debug" when Verbose is set.
		Level string
		// Verbose forces debug level regardless of Level.
		Verbose bool
		// File, when set, receives a copy of every record (rotated by size).
		File string
		// MaxSizeMB and MaxBackups tune rotation; zero selects the defaults.
		MaxSizeMB  int
		MaxBackups int
		// Console overrides stderr (tests).
		Console io.Writer
	}

	// Closer releases the log file, if one was opened.
	Closer func() error
)

// New returns a root logger and a Closer for its file sink.
func New(opts Options) (*log.Logger, Closer, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = log.DebugLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	closer := Closer(func() error { return nil })
	out := console
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = DefaultMaxSizeMB
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = DefaultMaxBackups
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   false,
		}
		out = io.MultiWriter(console, file)
		closer = file.Close
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})

	return logger, closer, nil
}

// Discard returns a logger that drops everything. Components fall back to it
// when no logger is injected.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component derives a prefixed child logger, or a discarding one when base is nil.
func Component(base *log.Logger, name string) *log.Logger {
	if base == nil {
		return Discard()
	}
	return base.WithPrefix(name)
}

// Close runs c, tolerating a nil Closer.
func (c Closer) Close() error {
	if c == nil {
		return nil
	}
	if err := c(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
