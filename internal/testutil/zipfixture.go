// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/yeka/zip"
)

// ZipEntry describes one member of a fixture archive. Names ending in "/"
// become directory entries; Body is ignored for them.
type ZipEntry struct {
	Name string
	Body []byte
}

// BuildZip returns an in-memory zip archive holding entries in order. When
// password is non-empty every file entry is AES-256 encrypted with it.
func BuildZip(t testing.TB, password string, entries ...ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		if strings.HasSuffix(e.Name, "/") {
			if _, err := zw.Create(e.Name); err != nil {
				t.Fatalf("creating zip directory %s: %v", e.Name, err)
			}
			continue
		}

		var (
			w   io.Writer
			err error
		)
		if password != "" {
			w, err = zw.Encrypt(e.Name, password, zip.AES256Encryption)
		} else {
			w, err = zw.Create(e.Name)
		}
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Body); err != nil {
			t.Fatalf("writing zip entry %s: %v", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteZip builds a fixture archive (see BuildZip) and writes it to path.
func WriteZip(t testing.TB, path, password string, entries ...ZipEntry) {
	t.Helper()

	if err := os.WriteFile(path, BuildZip(t, password, entries...), 0o644); err != nil {
		t.Fatalf("writing zip fixture %s: %v", path, err)
	}
}
