// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"github.com/upkit/upkit/internal/version"
)

const (
	// DefaultPackageFile is the downloaded archive's name in the install dir.
	DefaultPackageFile = "update.ltk"
	// StagingDirName is where packages are extracted inside the install dir.
	StagingDirName = ".upkit-staging"
	// DefaultChangelog is shown when no change log could be fetched.
	DefaultChangelog = "A new version is available."
)

type (
	// Descriptor identifies what is running and where updates come from.
	// It does not change for the lifetime of an Orchestrator.
	Descriptor struct {
		Current    version.Version
		VersionURL string
		PackageURL string
	}

	// Config is the Descriptor plus the local layout of an installation.
	Config struct {
		Descriptor

		// InstallDir is the directory updated in place.
		InstallDir string
		// PackageFile is the archive's file name inside InstallDir.
		PackageFile string
		// PayloadDir is the sub-directory of the archive holding the release;
		// empty means the archive root.
		PayloadDir string
		// Password decrypts the package; empty for unencrypted packages.
		Password string
		// ReplacePatterns overrides the files removed before the payload moves in.
		ReplacePatterns []string
	}
)

// Validate reports the first missing or malformed field.
func (c Config) Validate() error {
	if c.Current.IsZero() {
		return errors.New("current version is required")
	}
	for name, raw := range map[string]string{"version url": c.VersionURL, "package url": c.PackageURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q must be an absolute URL", name, raw)
		}
	}
	if c.InstallDir == "" || !filepath.IsAbs(c.InstallDir) {
		return fmt.Errorf("install dir %q must be an absolute path", c.InstallDir)
	}
	if filepath.Base(c.PackageFile) != c.PackageFile {
		return fmt.Errorf("package file %q must be a plain file name", c.PackageFile)
	}
	if c.PayloadDir != "" && (filepath.IsAbs(c.PayloadDir) || !filepath.IsLocal(c.PayloadDir)) {
		return fmt.Errorf("payload dir %q must be relative to the archive root", c.PayloadDir)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PackageFile == "" {
		c.PackageFile = DefaultPackageFile
	}
	return c
}

// PackagePath is where the archive is downloaded.
func (c Config) PackagePath() string {
	return filepath.Join(c.InstallDir, c.PackageFile)
}

// StagingDir is where the archive is extracted.
func (c Config) StagingDir() string {
	return filepath.Join(c.InstallDir, StagingDirName)
}

// PayloadPath is the directory whose contents replace the installation.
func (c Config) PayloadPath() string {
	if c.PayloadDir == "" {
		return c.StagingDir()
	}
	return filepath.Join(c.StagingDir(), filepath.FromSlash(c.PayloadDir))
}

// ChangelogURL derives the change-log location for latest: a
// changelog-<version>.txt next to the version file.
func ChangelogURL(versionURL string, latest version.Version) (string, error) {
	u, err := url.Parse(versionURL)
	if err != nil {
		return "", fmt.Errorf("parsing version url: %w", err)
	}
	u.Path = path.Join(path.Dir(u.Path), "changelog-"+latest.String()+".txt")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
