// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/upkit/upkit/pkg/platform"
)

const (
	// DefaultTimeout bounds version checks and download stalls.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryMax is how often a failed request is retried.
	DefaultRetryMax = 2
	// DefaultPackageFile is the package's file name in the install dir.
	DefaultPackageFile = "update.ltk"
	// DefaultLogLevel is the level used without --verbose.
	DefaultLogLevel = "info"
	// DefaultStartupDelay is how long the startup check waits before prompting.
	DefaultStartupDelay = time.Second

	redacted = "********"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// Config holds the application configuration.
	Config struct {
		// VersionURL is the published version file.
		VersionURL string `json:"version_url" mapstructure:"version_url"`
		// PackageURL is the release package.
		PackageURL string `json:"package_url" mapstructure:"package_url"`
		// InstallDir is updated in place; empty means the executable's directory.
		InstallDir string `json:"install_dir" mapstructure:"install_dir"`
		// PackageFile is the package's file name inside InstallDir.
		PackageFile string `json:"package_file" mapstructure:"package_file"`
		// PayloadDir is the package sub-directory holding the release.
		PayloadDir string `json:"payload_dir" mapstructure:"payload_dir"`
		// PackagePassword decrypts the package.
		PackagePassword string `json:"package_password" mapstructure:"package_password"`
		// Timeout bounds version checks and download stalls.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
		// RetryMax is how often a failed request is retried.
		RetryMax int `json:"retry_max" mapstructure:"retry_max"`
		// ReplacePatterns overrides the files removed before the release moves in.
		ReplacePatterns []string `json:"replace_patterns" mapstructure:"replace_patterns"`
		// Log configures logging.
		Log LogConfig `json:"log" mapstructure:"log"`
		// UI configures the terminal interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		File  string `json:"file" mapstructure:"file"`
		Level string `json:"level" mapstructure:"level"`
	}

	// UIConfig configures the terminal interface.
	UIConfig struct {
		Verbose      bool          `json:"verbose" mapstructure:"verbose"`
		StartupDelay time.Duration `json:"startup_delay" mapstructure:"startup_delay"`
	}

	// InvalidConfigError lists what makes a loaded configuration unusable.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		Field  string
		Reason string
	}

	// tomlView is the printable form of Config.
	tomlView struct {
		VersionURL      string   `toml:"version_url"`
		PackageURL      string   `toml:"package_url"`
		InstallDir      string   `toml:"install_dir"`
		PackageFile     string   `toml:"package_file"`
		PayloadDir      string   `toml:"payload_dir"`
		PackagePassword string   `toml:"package_password"`
		Timeout         string   `toml:"timeout"`
		RetryMax        int      `toml:"retry_max"`
		ReplacePatterns []string `toml:"replace_patterns,omitempty"`
		Log             struct {
			File  string `toml:"file"`
			Level string `toml:"level"`
		} `toml:"log"`
		UI struct {
			Verbose      bool   `toml:"verbose"`
			StartupDelay string `toml:"startup_delay"`
		} `toml:"ui"`
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *InvalidConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// DefaultConfig returns the built-in configuration. Endpoints are empty and
// must come from the build, a config file or the environment.
func DefaultConfig() *Config {
	return &Config{
		PackageFile: DefaultPackageFile,
		Timeout:     DefaultTimeout,
		RetryMax:    DefaultRetryMax,
		Log:         LogConfig{Level: DefaultLogLevel},
		UI:          UIConfig{StartupDelay: DefaultStartupDelay},
	}
}

// Validate checks what an update needs: both endpoints and sane limits.
func (c *Config) Validate() error {
	for field, raw := range map[string]string{"version_url": c.VersionURL, "package_url": c.PackageURL} {
		if raw == "" {
			return &InvalidConfigError{Field: field, Reason: "not set"}
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &InvalidConfigError{Field: field, Reason: fmt.Sprintf("%q is not an http(s) URL", raw)}
		}
	}
	if c.Timeout <= 0 {
		return &InvalidConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if c.RetryMax < 0 {
		return &InvalidConfigError{Field: "retry_max", Reason: "must not be negative"}
	}
	if platform.IsReservedFileName(c.PackageFile) {
		return &InvalidConfigError{Field: "package_file", Reason: fmt.Sprintf("%q is a reserved device name on Windows", c.PackageFile)}
	}
	return nil
}

// ResolvedInstallDir returns InstallDir as an absolute path, defaulting to
// the directory of the running executable.
func (c *Config) ResolvedInstallDir() (string, error) {
	if c.InstallDir != "" {
		return filepath.Abs(c.InstallDir)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// TOML renders c for display with the package password masked.
func (c *Config) TOML() (string, error) {
	var v tomlView
	v.VersionURL = c.VersionURL
	v.PackageURL = c.PackageURL
	v.InstallDir = c.InstallDir
	v.PackageFile = c.PackageFile
	v.PayloadDir = c.PayloadDir
	if c.PackagePassword != "" {
		v.PackagePassword = redacted
	}
	v.Timeout = c.Timeout.String()
	v.RetryMax = c.RetryMax
	v.ReplacePatterns = c.ReplacePatterns
	v.Log.File = c.Log.File
	v.Log.Level = c.Log.Level
	v.UI.Verbose = c.UI.Verbose
	v.UI.StartupDelay = c.UI.StartupDelay.String()

	out, err := toml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(out), nil
}
