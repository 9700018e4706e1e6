// SPDX-License-Identifier: MPL-2.0

package restart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/upkit/upkit/pkg/platform"
)

var (
	//nolint:gochecknoglobals // Test seam for os.Executable().
	osExecutable = os.Executable

	//nolint:gochecknoglobals // Test seam for filepath.EvalSymlinks().
	evalSymlinks = filepath.EvalSymlinks

	//nolint:gochecknoglobals // Compiled once; immutable.
	safePattern = regexp.MustCompile(`^[A-Za-z0-9._*?\-]+$`)
)

// Plan is everything the restart helper needs, produced once extraction has
// fully succeeded and consumed once by Stager.Stage.
type Plan struct {
	// ProcessImagePath is the absolute path of the executable to relaunch.
	ProcessImagePath string
	// ProcessName is the image name the helper may force-terminate.
	ProcessName string
	// PID is the process the helper waits for.
	PID int
	// ExtractedPayloadDir holds the new files; its contents are moved into InstallDir.
	ExtractedPayloadDir string
	// InstallDir receives the payload. Defaults to the directory of ProcessImagePath.
	InstallDir string
	// WorkingDir is where the relaunched application starts.
	WorkingDir string
	// ReplacePatterns are file globs (no separators) deleted from InstallDir
	// before the payload moves in.
	ReplacePatterns []string
}

// DefaultReplacePatterns returns the files the helper removes before moving
// the payload in. On Windows that is every executable, library, symbol and
// config file, because any of them may be locked or stale; elsewhere only the
// executable itself needs to go.
func DefaultReplacePatterns(goos, exeName string) []string {
	if goos == platform.Windows {
		return []string{"*.exe", "*.dll", "*.pdb", "*.config"}
	}
	return []string{exeName}
}

// CurrentProcessPlan describes the running process as the relaunch target.
func CurrentProcessPlan(payloadDir string, patterns []string) (Plan, error) {
	pid := os.Getpid()

	exe, err := resolveExecPath()
	if err != nil {
		return Plan{}, stagingErr("resolve executable", err)
	}

	name := filepath.Base(exe)
	workDir := filepath.Dir(exe)
	if proc, procErr := process.NewProcess(int32(pid)); procErr == nil {
		if n, nameErr := proc.Name(); nameErr == nil && n != "" {
			name = n
		}
		if cwd, cwdErr := proc.Cwd(); cwdErr == nil && cwd != "" {
			workDir = cwd
		}
	}

	if len(patterns) == 0 {
		patterns = DefaultReplacePatterns(runtime.GOOS, filepath.Base(exe))
	}

	return Plan{
		ProcessImagePath:    exe,
		ProcessName:         name,
		PID:                 pid,
		ExtractedPayloadDir: payloadDir,
		InstallDir:          filepath.Dir(exe),
		WorkingDir:          workDir,
		ReplacePatterns:     patterns,
	}, nil
}

// withDefaults fills InstallDir and WorkingDir from ProcessImagePath.
func (p Plan) withDefaults() Plan {
	if p.InstallDir == "" && p.ProcessImagePath != "" {
		p.InstallDir = filepath.Dir(p.ProcessImagePath)
	}
	if p.WorkingDir == "" {
		p.WorkingDir = p.InstallDir
	}
	if p.ProcessName == "" && p.ProcessImagePath != "" {
		p.ProcessName = filepath.Base(p.ProcessImagePath)
	}
	return p
}

// Validate checks every precondition the helper relies on. helperName is the
// file name the helper will be written under; no replace pattern may match it.
func (p Plan) Validate(helperName string) error {
	if p.PID <= 0 {
		return fmt.Errorf("invalid pid %d", p.PID)
	}
	for label, path := range map[string]string{
		"process image": p.ProcessImagePath,
		"payload dir":   p.ExtractedPayloadDir,
		"install dir":   p.InstallDir,
		"working dir":   p.WorkingDir,
	} {
		if path == "" || !filepath.IsAbs(path) {
			return fmt.Errorf("%s %q must be an absolute path", label, path)
		}
	}
	if filepath.Clean(p.ExtractedPayloadDir) == filepath.Clean(p.InstallDir) {
		return errors.New("payload dir must differ from install dir")
	}

	entries, err := os.ReadDir(p.ExtractedPayloadDir)
	if err != nil {
		return fmt.Errorf("reading payload dir: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("payload dir %s is empty", p.ExtractedPayloadDir)
	}

	if len(p.ReplacePatterns) == 0 {
		return errors.New("no replace patterns")
	}
	for _, pat := range p.ReplacePatterns {
		if !safePattern.MatchString(pat) {
			return fmt.Errorf("replace pattern %q may only contain letters, digits, '.', '_', '-', '*' and '?'", pat)
		}
		if matched, _ := filepath.Match(pat, helperName); matched {
			return fmt.Errorf("replace pattern %q would delete the helper %s", pat, helperName)
		}
	}
	return nil
}

// resolveExecPath returns the absolute, symlink-resolved path to the running binary.
func resolveExecPath() (string, error) {
	p, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("determining executable path: %w", err)
	}

	resolved, err := evalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", p, err)
	}

	return resolved, nil
}
