// SPDX-License-Identifier: MPL-2.0

package restart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"mvdan.cc/sh/v3/syntax"

	"github.com/upkit/upkit/pkg/platform"
)

// Flavor selects the helper script dialect.
type Flavor int

const (
	// FlavorPOSIX renders a /bin/sh script.
	FlavorPOSIX Flavor = iota
	// FlavorBatch renders a cmd.exe batch file.
	FlavorBatch
)

// DefaultWaitSeconds is how long a helper waits for the old process before
// force-terminating it.
const DefaultWaitSeconds = 30

// HostFlavor returns the flavor for the running OS.
func HostFlavor() Flavor {
	return FlavorFor(runtime.GOOS)
}

// FlavorFor returns the flavor for goos.
func FlavorFor(goos string) Flavor {
	if goos == platform.Windows {
		return FlavorBatch
	}
	return FlavorPOSIX
}

// Ext is the helper file extension for the flavor.
func (f Flavor) Ext() string {
	if f == FlavorBatch {
		return ".bat"
	}
	return ".sh"
}

// String returns the dialect name.
func (f Flavor) String() string {
	if f == FlavorBatch {
		return "batch"
	}
	return "posix"
}

// Script is a rendered, validated helper ready to be written.
type Script struct {
	Name   string
	Flavor Flavor
	Body   []byte
}

// WipePlan is what the kill-switch helper needs.
type WipePlan struct {
	PID         int
	ProcessName string
	InstallDir  string
}

// Helper base names, extension appended per flavor.
const (
	RestartHelperBase = "upkit-restart"
	WipeHelperBase    = "upkit-wipe"
)

const posixWait = `{{ define "wait" -}}
pid={{ .PID }}
waited=0
while kill -0 "$pid" 2>/dev/null; do
	if [ "$waited" -ge {{ .WaitSeconds }} ]; then
		kill -9 "$pid" 2>/dev/null
		sleep 1
		break
	fi
	sleep 1
	waited=$((waited + 1))
done
{{- end }}`

const posixRestart = posixWait + `#!/bin/sh
{{ template "wait" . }}
cd {{ sh .InstallDir }} || exit 1
{{- range .ReplacePatterns }}
rm -f -- {{ . }}
{{- end }}
cp -R {{ sh .PayloadDir }}/. . && rm -rf {{ sh .PayloadDir }}
(cd {{ sh .WorkingDir }} && nohup {{ sh .Executable }} >/dev/null 2>&1 &)
rm -f -- "$0"
`

const posixWipe = posixWait + `#!/bin/sh
{{ template "wait" . }}
cd {{ sh .InstallDir }} || exit 1
find . -mindepth 1 -delete
rm -f -- "$0"
`

const batchWait = `{{ define "wait" -}}
set /a waited=0
:wait
tasklist /fi "PID eq {{ .PID }}" 2>nul | find "{{ .PID }}" >nul
if errorlevel 1 goto ready
if %waited% geq {{ .WaitSeconds }} (
	taskkill /f /im "{{ bat .ProcessName }}" >nul 2>&1
	timeout /t 2 /nobreak >nul
	goto ready
)
timeout /t 1 /nobreak >nul
set /a waited+=1
goto wait
:ready
{{- end }}`

const batchRestart = batchWait + `@echo off
{{ template "wait" . }}
cd /d "{{ bat .InstallDir }}" || exit /b 1
{{- range .ReplacePatterns }}
del /f /q {{ . }} >nul 2>&1
{{- end }}
robocopy "{{ bat .PayloadDir }}" "." /move /e >nul
start "" /d "{{ bat .WorkingDir }}" "{{ bat .Executable }}"
del "%~f0"
`

const batchWipe = batchWait + `@echo off
{{ template "wait" . }}
cd /d "{{ bat .InstallDir }}" || exit /b 1
for /d %%D in (*) do rmdir /s /q "%%D"
del /f /q *.* >nul 2>&1
del "%~f0"
`

type scriptData struct {
	PID             int
	WaitSeconds     int
	ProcessName     string
	Executable      string
	InstallDir      string
	PayloadDir      string
	WorkingDir      string
	ReplacePatterns []string
}

//nolint:gochecknoglobals // Parsed once; immutable.
var templates = map[Flavor]map[string]*template.Template{
	FlavorPOSIX: {
		RestartHelperBase: mustTemplate("posix-restart", posixRestart),
		WipeHelperBase:    mustTemplate("posix-wipe", posixWipe),
	},
	FlavorBatch: {
		RestartHelperBase: mustTemplate("batch-restart", batchRestart),
		WipeHelperBase:    mustTemplate("batch-wipe", batchWipe),
	},
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{
		"sh":  shQuote,
		"bat": batValue,
	}).Parse(text))
}

// RenderRestart renders the restart helper for plan.
func RenderRestart(plan Plan, flavor Flavor, waitSeconds int) (Script, error) {
	plan = plan.withDefaults()
	name := RestartHelperBase + flavor.Ext()
	if err := plan.Validate(name); err != nil {
		return Script{}, stagingErr("validate plan", err)
	}
	return render(flavor, RestartHelperBase, scriptData{
		PID:             plan.PID,
		WaitSeconds:     waitOrDefault(waitSeconds),
		ProcessName:     plan.ProcessName,
		Executable:      plan.ProcessImagePath,
		InstallDir:      plan.InstallDir,
		PayloadDir:      plan.ExtractedPayloadDir,
		WorkingDir:      plan.WorkingDir,
		ReplacePatterns: plan.ReplacePatterns,
	})
}

// RenderWipe renders the kill-switch helper that empties w.InstallDir.
func RenderWipe(w WipePlan, flavor Flavor, waitSeconds int) (Script, error) {
	if err := w.validate(); err != nil {
		return Script{}, stagingErr("validate wipe", err)
	}
	return render(flavor, WipeHelperBase, scriptData{
		PID:         w.PID,
		WaitSeconds: waitOrDefault(waitSeconds),
		ProcessName: w.ProcessName,
		InstallDir:  w.InstallDir,
	})
}

func (w WipePlan) validate() error {
	if w.PID <= 0 {
		return fmt.Errorf("invalid pid %d", w.PID)
	}
	if w.InstallDir == "" || !filepath.IsAbs(w.InstallDir) {
		return fmt.Errorf("install dir %q must be an absolute path", w.InstallDir)
	}
	clean := filepath.Clean(w.InstallDir)
	if clean == filepath.Dir(clean) {
		return fmt.Errorf("refusing to wipe filesystem root %s", clean)
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return fmt.Errorf("refusing to wipe home directory %s", clean)
	}
	return nil
}

func render(flavor Flavor, base string, data scriptData) (Script, error) {
	tmpl, ok := templates[flavor][base]
	if !ok {
		return Script{}, stagingErr("render", fmt.Errorf("no %s template for %s", base, flavor))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Script{}, stagingErr("render", err)
	}

	body := buf.Bytes()
	switch flavor {
	case FlavorPOSIX:
		if err := checkShell(base, body); err != nil {
			return Script{}, stagingErr("validate script", err)
		}
	case FlavorBatch:
		body = bytes.ReplaceAll(body, []byte("\n"), []byte("\r\n"))
	}

	return Script{Name: base + flavor.Ext(), Flavor: flavor, Body: body}, nil
}

// checkShell parses body as POSIX shell so a malformed helper never reaches disk.
func checkShell(name string, body []byte) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	_, err := parser.Parse(bytes.NewReader(body), name)
	return err
}

func shQuote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangPOSIX)
}

// batValue admits a value inside double quotes in a batch file. cmd.exe has
// no escape that survives every context, so values that would be expanded or
// end the quoting are refused instead.
func batValue(s string) (string, error) {
	if strings.ContainsAny(s, "\"%!\r\n") {
		return "", fmt.Errorf("value %q contains characters that cannot be quoted for cmd.exe", s)
	}
	if s == "" {
		return "", errors.New("empty value")
	}
	return s, nil
}

func waitOrDefault(n int) int {
	if n <= 0 {
		return DefaultWaitSeconds
	}
	return n
}

// WriteHelper writes s into dir and returns its path.
func WriteHelper(dir string, s Script) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", stagingErr("write helper", err)
	}
	path := filepath.Join(dir, s.Name)
	//nolint:gosec // The helper must be executable.
	if err := os.WriteFile(path, s.Body, 0o755); err != nil {
		return "", stagingErr("write helper", err)
	}
	return path, nil
}
