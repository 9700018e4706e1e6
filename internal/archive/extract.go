// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yeka/zip"
)

// MaxEntryBytes bounds a single decompressed entry (2 GiB) to stop
// decompression bombs.
const MaxEntryBytes = 2 << 30

type (
	// Progress counts completed file entries. Total is fixed for one extraction
	// and Processed only grows.
	Progress struct {
		Processed int
		Total     int
	}

	// ProgressFunc receives a Progress after each completed file entry.
	ProgressFunc func(Progress)

	// plannedEntry is a validated archive member and its destination.
	plannedEntry struct {
		file *zip.File
		dest string
	}
)

// Fraction returns completion in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

// Extract unpacks the zip at archivePath into destDir, creating destDir and any
// intermediate directories. Existing files are overwritten. password is applied
// to encrypted entries and ignored for plain ones. onProgress may be nil.
//
// Validation happens before any write: a single unsafe entry rejects the
// archive with nothing extracted. A failure part-way through (I/O error, bad
// password on a later entry) can leave earlier entries written.
func Extract(archivePath, destDir, password string, onProgress ProgressFunc) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("opening archive: %w", err)}
	}
	defer func() { _ = zr.Close() }() // read-only archive handle

	root, err := filepath.Abs(destDir)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("resolving destination: %w", err)}
	}

	dirs, files, err := plan(zr.File, root)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Entry: entryName(err), Err: err}
	}

	for _, f := range files {
		if f.file.IsEncrypted() && password == "" {
			return &ExtractionError{Archive: archivePath, Entry: f.file.Name, Err: ErrPasswordRequired}
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("creating destination: %w", err)}
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("creating directory: %w", err)}
		}
	}

	total := len(files)
	for i, f := range files {
		if err := extractFile(f, password); err != nil {
			return &ExtractionError{Archive: archivePath, Entry: f.file.Name, Err: err}
		}
		if onProgress != nil {
			onProgress(Progress{Processed: i + 1, Total: total})
		}
	}

	return nil
}

// entryPathError carries the offending entry name out of plan.
type entryPathError struct {
	name string
	err  error
}

func (e *entryPathError) Error() string { return e.err.Error() }
func (e *entryPathError) Unwrap() error { return e.err }

func entryName(err error) string {
	var pe *entryPathError
	if errors.As(err, &pe) {
		return pe.name
	}
	return ""
}

// plan validates every entry and resolves its destination under root.
func plan(entries []*zip.File, root string) (dirs []string, files []plannedEntry, err error) {
	for _, f := range entries {
		dest, err := SafeJoin(root, f.Name)
		if err != nil {
			return nil, nil, &entryPathError{name: f.Name, err: err}
		}

		mode := f.Mode()
		switch {
		case mode&fs.ModeSymlink != 0:
			return nil, nil, &entryPathError{name: f.Name, err: fmt.Errorf("%w: symbolic links are not allowed", ErrUnsafePath)}
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			dirs = append(dirs, dest)
		case mode.IsRegular():
			files = append(files, plannedEntry{file: f, dest: dest})
		default:
			return nil, nil, &entryPathError{name: f.Name, err: fmt.Errorf("%w: unsupported entry type %s", ErrUnsafePath, mode.Type())}
		}
	}
	return dirs, files, nil
}

// SafeJoin resolves an archive entry name under root and fails with
// ErrUnsafePath if the result would escape root. Both '/' and '\' are
// treated as separators since archives built on Windows use either.
func SafeJoin(root, name string) (string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")
	if normalized == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnsafePath)
	}
	if path.IsAbs(normalized) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" || hasDriveLetter(normalized) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}

	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the destination", ErrUnsafePath, name)
	}

	dest := filepath.Join(root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q escapes the destination", ErrUnsafePath, name)
	}
	return dest, nil
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

// extractFile streams one entry into its destination, truncating any existing file.
func extractFile(f plannedEntry, password string) (err error) {
	if f.file.UncompressedSize64 > MaxEntryBytes {
		return ErrEntryTooLarge
	}
	if f.file.IsEncrypted() {
		f.file.SetPassword(password)
	}

	if err := os.MkdirAll(filepath.Dir(f.dest), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	rc, err := f.file.Open()
	if err != nil {
		return decryptAware(f.file, fmt.Errorf("opening entry: %w", err))
	}
	defer func() { _ = rc.Close() }() // read-only entry stream

	perm := f.file.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(f.dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", closeErr)
		}
	}()

	src := &entryReader{r: rc}
	n, err := io.Copy(out, io.LimitReader(src, MaxEntryBytes+1))
	if err != nil {
		if src.err != nil {
			return decryptAware(f.file, fmt.Errorf("reading entry: %w", src.err))
		}
		return fmt.Errorf("writing file: %w", err)
	}
	if n > MaxEntryBytes {
		return ErrEntryTooLarge
	}
	return nil
}

// entryReader remembers read-side failures so they can be told apart from
// write-side ones after io.Copy.
type entryReader struct {
	r   io.Reader
	err error
}

func (e *entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		e.err = err
	}
	return n, err
}

// decryptAware classifies read failures of encrypted entries as ErrBadPassword.
// With a wrong key an encrypted entry fails either on open (password verifier)
// or on the trailing authentication check; both surface here.
func decryptAware(f *zip.File, err error) error {
	if f.IsEncrypted() {
		return fmt.Errorf("%w: %w", ErrBadPassword, err)
	}
	return err
}
