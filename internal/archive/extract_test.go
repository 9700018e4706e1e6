// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/upkit/upkit/internal/testutil"
)

func TestExtract_PlainArchive(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "update.ltk")
	testutil.WriteZip(t, archivePath, "",
		testutil.ZipEntry{Name: "App/"},
		testutil.ZipEntry{Name: "App/app.exe", Body: []byte("binary")},
		testutil.ZipEntry{Name: "App/lib/core.dll", Body: []byte("library")},
		testutil.ZipEntry{Name: "App/empty/"},
		testutil.ZipEntry{Name: "App/readme.txt", Body: []byte("hello")},
	)

	dest := filepath.Join(tmp, "out")
	var reports []Progress
	if err := Extract(archivePath, dest, "", func(p Progress) { reports = append(reports, p) }); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	want := map[string]string{
		"App/app.exe":      "binary",
		"App/lib/core.dll": "library",
		"App/readme.txt":   "hello",
	}
	for rel, body := range want {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("reading %s: %v", rel, err)
			continue
		}
		if string(got) != body {
			t.Errorf("%s = %q, want %q", rel, got, body)
		}
	}
	if info, err := os.Stat(filepath.Join(dest, "App", "empty")); err != nil || !info.IsDir() {
		t.Errorf("directory entry should be created, stat err = %v", err)
	}

	// Directory entries are not reported; file entries are, in order.
	if len(reports) != 3 {
		t.Fatalf("got %d progress reports, want 3: %+v", len(reports), reports)
	}
	for i, p := range reports {
		if p.Processed != i+1 || p.Total != 3 {
			t.Errorf("report %d = %+v, want {%d 3}", i, p, i+1)
		}
	}
}

func TestExtract_OverwritesExistingFiles(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "update.ltk")
	testutil.WriteZip(t, archivePath, "", testutil.ZipEntry{Name: "config.ini", Body: []byte("new")})

	dest := filepath.Join(tmp, "out")
	testutil.MustMkdirAll(t, dest, 0o755)
	if err := os.WriteFile(filepath.Join(dest, "config.ini"), []byte("old and much longer"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Extract(archivePath, dest, "", nil); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dest, "config.ini"))
	if string(got) != "new" {
		t.Errorf("config.ini = %q, want %q", got, "new")
	}
}

func TestExtract_EncryptedArchive(t *testing.T) {
	t.Parallel()

	const passphrase = "Hx.123456"

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "correct password", password: passphrase},
		{name: "missing password", password: "", wantErr: ErrPasswordRequired},
		{name: "wrong password", password: "guess", wantErr: ErrBadPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			archivePath := filepath.Join(tmp, "update.ltk")
			testutil.WriteZip(t, archivePath, passphrase,
				testutil.ZipEntry{Name: "App/app.exe", Body: []byte("secret payload")},
			)
			dest := filepath.Join(tmp, "out")

			err := Extract(archivePath, dest, tt.password, nil)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Extract() error: %v", err)
				}
				got, _ := os.ReadFile(filepath.Join(dest, "App", "app.exe"))
				if string(got) != "secret payload" {
					t.Errorf("decrypted body = %q", got)
				}
				return
			}

			if !errors.Is(err, ErrExtraction) || !errors.Is(err, tt.wantErr) {
				t.Fatalf("Extract() error = %v, want ErrExtraction wrapping %v", err, tt.wantErr)
			}
			var exErr *ExtractionError
			if !errors.As(err, &exErr) || exErr.Entry != "App/app.exe" {
				t.Errorf("error should name the entry, got %#v", err)
			}
		})
	}
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../../evil.exe", "App/../../evil.exe", `..\..\evil.exe`, "/etc/evil"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			archivePath := filepath.Join(tmp, "pkg", "update.ltk")
			testutil.MustMkdirAll(t, filepath.Dir(archivePath), 0o755)
			testutil.WriteZip(t, archivePath, "",
				testutil.ZipEntry{Name: "App/good.txt", Body: []byte("fine")},
				testutil.ZipEntry{Name: name, Body: []byte("evil")},
			)
			dest := filepath.Join(tmp, "pkg", "out", "nested")

			err := Extract(archivePath, dest, "", nil)
			if !errors.Is(err, ErrUnsafePath) || !errors.Is(err, ErrExtraction) {
				t.Fatalf("Extract() error = %v, want ErrUnsafePath", err)
			}

			// Nothing is written, not even the valid entry listed first.
			for _, p := range []string{
				filepath.Join(tmp, "evil.exe"),
				filepath.Join(tmp, "pkg", "evil.exe"),
				filepath.Join(tmp, "pkg", "out", "evil.exe"),
				filepath.Join(dest, "App", "good.txt"),
			} {
				if _, statErr := os.Stat(p); !os.IsNotExist(statErr) {
					t.Errorf("%s should not exist (stat err = %v)", p, statErr)
				}
			}
		})
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "update.ltk")
	if err := os.WriteFile(archivePath, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Extract(archivePath, filepath.Join(tmp, "out"), "", nil)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("Extract() error = %v, want ErrExtraction", err)
	}
}

func TestExtract_MissingArchive(t *testing.T) {
	t.Parallel()

	err := Extract(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir(), "", nil)
	if !errors.Is(err, ErrExtraction) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Extract() error = %v, want ErrExtraction wrapping ErrNotExist", err)
	}
}

func TestSafeJoin(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "root")

	tests := []struct {
		name    string
		entry   string
		want    string
		wantErr bool
	}{
		{name: "simple", entry: "a.txt", want: filepath.Join(root, "a.txt")},
		{name: "nested", entry: "a/b/c.txt", want: filepath.Join(root, "a", "b", "c.txt")},
		{name: "backslashes", entry: `a\b.txt`, want: filepath.Join(root, "a", "b.txt")},
		{name: "inner dotdot stays inside", entry: "a/../b.txt", want: filepath.Join(root, "b.txt")},
		{name: "dot prefix", entry: "./a.txt", want: filepath.Join(root, "a.txt")},
		{name: "escape", entry: "../a.txt", wantErr: true},
		{name: "deep escape", entry: "a/../../a.txt", wantErr: true},
		{name: "bare dotdot", entry: "..", wantErr: true},
		{name: "absolute", entry: "/abs.txt", wantErr: true},
		{name: "drive letter", entry: "C:/Windows/evil.dll", wantErr: true},
		{name: "empty", entry: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := SafeJoin(root, tt.entry)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsafePath) {
					t.Errorf("SafeJoin(%q) = %q, %v; want ErrUnsafePath", tt.entry, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SafeJoin(%q) error: %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("SafeJoin(%q) = %q, want %q", tt.entry, got, tt.want)
			}
		})
	}
}

func TestProgress_Fraction(t *testing.T) {
	t.Parallel()

	if got := (Progress{Processed: 1, Total: 4}).Fraction(); got != 0.25 {
		t.Errorf("Fraction() = %v, want 0.25", got)
	}
	if got := (Progress{}).Fraction(); got != 1 {
		t.Errorf("empty archive Fraction() = %v, want 1", got)
	}
}
