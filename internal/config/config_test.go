// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/upkit/upkit/internal/issue"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.PackageFile != "update.ltk" {
		t.Errorf("PackageFile = %q", cfg.PackageFile)
	}
	if cfg.RetryMax != DefaultRetryMax || cfg.Log.Level != "info" || cfg.UI.StartupDelay != time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without endpoints should not validate")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `
version_url: "https://updates.example.com/app/Version.txt"
package_url: "https://updates.example.com/app/update.zip"
payload_dir: "App"
timeout:     "1m30s"
retry_max:   4
replace_patterns: ["app", "*.so"]
log: level: "debug"
ui: startup_delay: "250ms"
`)

	cfg, used, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if used != path {
		t.Errorf("loaded from %q, want %q", used, path)
	}
	if cfg.VersionURL != "https://updates.example.com/app/Version.txt" || cfg.PayloadDir != "App" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout != 90*time.Second || cfg.RetryMax != 4 {
		t.Errorf("Timeout=%v RetryMax=%d", cfg.Timeout, cfg.RetryMax)
	}
	if strings.Join(cfg.ReplacePatterns, ",") != "app,*.so" {
		t.Errorf("ReplacePatterns = %v", cfg.ReplacePatterns)
	}
	if cfg.Log.Level != "debug" || cfg.UI.StartupDelay != 250*time.Millisecond {
		t.Errorf("Log=%+v UI=%+v", cfg.Log, cfg.UI)
	}
	if cfg.PackageFile != DefaultPackageFile {
		t.Errorf("unset field lost its default: PackageFile = %q", cfg.PackageFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `color: "red"`, "color"},
		{"non http url", `version_url: "ftp://example.com/v.txt"`, "version_url"},
		{"bad duration", `timeout: "soon"`, "timeout"},
		{"retry out of range", `retry_max: 99`, "retry_max"},
		{"package file with separator", `package_file: "../update.ltk"`, "package_file"},
		{"bad level", `log: level: "loud"`, "level"},
		{"syntax error", `version_url: "unterminated`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, t.TempDir(), tt.body)
			_, _, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("Load() = nil, want a schema error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Resource != path {
				t.Errorf("error %v is not an ActionableError for %s", err, path)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, _, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue")})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() = %v", err)
	}
}

func TestLoadDefaultsOnlyWhenNoFile(t *testing.T) {
	t.Parallel()

	defaults := DefaultConfig()
	defaults.VersionURL = "https://built.in/Version.txt"

	cfg, used, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir(), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if used != "" {
		t.Errorf("loaded %q, want defaults only", used)
	}
	if cfg.VersionURL != "https://built.in/Version.txt" {
		t.Errorf("build default lost: %q", cfg.VersionURL)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `timeout: "10s"
log: level: "warn"
`)
	t.Setenv("UPKIT_TIMEOUT", "45s")
	t.Setenv("UPKIT_LOG_LEVEL", "error")
	t.Setenv("UPKIT_PACKAGE_PASSWORD", "from-env")

	cfg, _, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s from env", cfg.Timeout)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error from env", cfg.Log.Level)
	}
	if cfg.PackagePassword != "from-env" {
		t.Errorf("PackagePassword = %q", cfg.PackagePassword)
	}
}

func TestLoadCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() = %v, want context.Canceled", err)
	}
}

func TestGeneratedConfigRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.cue")

	wrote, err := CreateDefaultConfig(path, DefaultConfig())
	if err != nil || !wrote {
		t.Fatalf("CreateDefaultConfig() = %v, %v", wrote, err)
	}
	if wrote, err := CreateDefaultConfig(path, DefaultConfig()); err != nil || wrote {
		t.Errorf("second CreateDefaultConfig() = %v, %v; want existing file kept", wrote, err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "// version_url:") {
		t.Errorf("unset endpoint not commented out:\n%s", body)
	}

	cfg, _, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, body)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	good := DefaultConfig()
	good.VersionURL = "https://example.com/Version.txt"
	good.PackageURL = "https://example.com/update.zip"

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing package url", func(c *Config) { c.PackageURL = "" }, "package_url"},
		{"relative version url", func(c *Config) { c.VersionURL = "/Version.txt" }, "version_url"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative retries", func(c *Config) { c.RetryMax = -1 }, "retry_max"},
		{"reserved package file", func(c *Config) { c.PackageFile = "nul.zip" }, "package_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := *good
			tt.mutate(&c)
			err := c.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var ice *InvalidConfigError
			if !errors.As(err, &ice) || ice.Field != tt.field || !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want InvalidConfigError for %s", err, tt.field)
			}
		})
	}
}

func TestTOMLMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PackagePassword = "hunter2"
	out, err := cfg.TOML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") {
		t.Error("password leaked into TOML output")
	}
	for _, want := range []string{"timeout = '30s'", "[log]", "level = 'info'", "[ui]"} {
		if !strings.Contains(out, want) {
			t.Errorf("TOML output missing %q:\n%s", want, out)
		}
	}
}

func TestResolvedInstallDir(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	dir, err := cfg.ResolvedInstallDir()
	if err != nil || !filepath.IsAbs(dir) {
		t.Fatalf("ResolvedInstallDir() = %q, %v", dir, err)
	}

	cfg.InstallDir = "relative/app"
	dir, err = cfg.ResolvedInstallDir()
	if err != nil || !filepath.IsAbs(dir) || !strings.HasSuffix(dir, filepath.Join("relative", "app")) {
		t.Errorf("ResolvedInstallDir() = %q, %v", dir, err)
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	got, err := DefaultConfigPath()
	if err != nil || got != filepath.Join(dir, "config.cue") {
		t.Errorf("DefaultConfigPath() = %q, %v", got, err)
	}
}
