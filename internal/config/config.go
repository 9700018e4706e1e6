// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/upkit/upkit/internal/issue"
	"github.com/upkit/upkit/pkg/platform"
)

const (
	// AppName is the application name.
	AppName = "upkit"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides (UPKIT_TIMEOUT, UPKIT_LOG_LEVEL, ...).
	EnvPrefix = "UPKIT"

	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the upkit configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// DefaultConfigPath is config.cue inside ConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. It returns the config and the file it came from, if any.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = DefaultConfig()
	}
	v.SetDefault("version_url", defaults.VersionURL)
	v.SetDefault("package_url", defaults.PackageURL)
	v.SetDefault("install_dir", defaults.InstallDir)
	v.SetDefault("package_file", defaults.PackageFile)
	v.SetDefault("payload_dir", defaults.PayloadDir)
	v.SetDefault("package_password", defaults.PackagePassword)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("retry_max", defaults.RetryMax)
	v.SetDefault("replace_patterns", defaults.ReplacePatterns)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.startup_delay", defaults.UI.StartupDelay)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolveConfigPath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the schema printed by 'upkit config init'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, path, nil
}

// resolveConfigPath picks the file to load: an explicit path (which must
// exist), config.cue in the config dir, then config.cue in the working dir.
// An empty result means "defaults only".
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'upkit config init' to create a config file").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		cfgDir = dir
	}

	for _, candidate := range []string{
		filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
		ConfigFileName + "." + ConfigFileExt,
	} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a commented config.cue to path unless one exists.
// It reports whether a file was written.
func CreateDefaultConfig(path string, defaults *Config) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(defaults)), 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE renders cfg as a config.cue file. The package password is
// never written; it belongs in UPKIT_PACKAGE_PASSWORD or the build.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// upkit configuration file\n")
	sb.WriteString("// Environment variables (UPKIT_VERSION_URL, UPKIT_LOG_LEVEL, ...) override these values.\n\n")

	writeURL(&sb, "version_url", cfg.VersionURL, "https://example.com/app/Version.txt")
	writeURL(&sb, "package_url", cfg.PackageURL, "https://example.com/app/update.zip")
	if cfg.InstallDir != "" {
		fmt.Fprintf(&sb, "install_dir: %q\n", cfg.InstallDir)
	}
	fmt.Fprintf(&sb, "package_file: %q\n", cfg.PackageFile)
	if cfg.PayloadDir != "" {
		fmt.Fprintf(&sb, "payload_dir: %q\n", cfg.PayloadDir)
	}
	fmt.Fprintf(&sb, "timeout: %q\n", cfg.Timeout.String())
	fmt.Fprintf(&sb, "retry_max: %d\n", cfg.RetryMax)
	if len(cfg.ReplacePatterns) > 0 {
		quoted := make([]string, len(cfg.ReplacePatterns))
		for i, p := range cfg.ReplacePatterns {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		fmt.Fprintf(&sb, "replace_patterns: [%s]\n", strings.Join(quoted, ", "))
	}

	sb.WriteString("\nlog: {\n")
	if cfg.Log.File != "" {
		fmt.Fprintf(&sb, "\tfile: %q\n", cfg.Log.File)
	}
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tstartup_delay: %q\n", cfg.UI.StartupDelay.String())
	sb.WriteString("}\n")

	return sb.String()
}

// writeURL leaves unset endpoints as a commented example so the file validates.
func writeURL(sb *strings.Builder, key, value, example string) {
	if value == "" {
		fmt.Fprintf(sb, "// %s: %q\n", key, example)
		return
	}
	fmt.Fprintf(sb, "%s: %q\n", key, value)
}
