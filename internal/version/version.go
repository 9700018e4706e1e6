// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"fmt"
	"regexp"

	goversion "github.com/hashicorp/go-version"
)

// ErrMalformedVersion is returned when a string is not a dotted numeric version.
var ErrMalformedVersion = errors.New("malformed version")

//nolint:gochecknoglobals // Compiled once; immutable.
var dottedNumeric = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

type (
	// Version is an ordered tuple of non-negative integer components.
	// The zero value is not a valid version; obtain one through Parse.
	Version struct {
		raw string
		v   *goversion.Version
	}

	// MalformedVersionError reports the input that failed to parse.
	// It wraps ErrMalformedVersion for errors.Is() compatibility.
	MalformedVersionError struct {
		Input  string
		Reason string
	}
)

// Error implements the error interface.
func (e *MalformedVersionError) Error() string {
	return fmt.Sprintf("malformed version %q: %s", e.Input, e.Reason)
}

// Unwrap returns ErrMalformedVersion.
func (e *MalformedVersionError) Unwrap() error { return ErrMalformedVersion }

// Parse converts s into a Version. The input is used as-is; callers that read
// versions from files should trim whitespace first.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, &MalformedVersionError{Input: s, Reason: "empty string"}
	}
	if !dottedNumeric.MatchString(s) {
		return Version{}, &MalformedVersionError{Input: s, Reason: "components must be non-negative integers separated by '.'"}
	}

	v, err := goversion.NewVersion(s)
	if err != nil {
		// Only reachable for components that overflow int64.
		return Version{}, &MalformedVersionError{Input: s, Reason: err.Error()}
	}

	return Version{raw: s, v: v}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// compile-time constants such as the running application's own version.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version exactly as it was parsed.
func (v Version) String() string {
	return v.raw
}

// IsZero reports whether v is the zero value (never produced by Parse).
func (v Version) IsZero() bool {
	return v.v == nil
}

// Segments returns the parsed components. Trailing zero padding applied by the
// ordering is not included for versions with fewer than three components.
func (v Version) Segments() []int64 {
	if v.v == nil {
		return nil
	}
	segs := v.v.Segments64()
	n := componentCount(v.raw)
	if n < len(segs) {
		segs = segs[:n]
	}
	return segs
}

// Compare returns -1, 0 or +1 when a is less than, equal to or greater than b.
// Missing trailing components compare as zero, so "1.2" equals "1.2.0.0".
func Compare(a, b Version) int {
	switch {
	case a.v == nil && b.v == nil:
		return 0
	case a.v == nil:
		return -1
	case b.v == nil:
		return 1
	}
	return a.v.Compare(b.v)
}

// Equal reports whether a and b order equally.
func Equal(a, b Version) bool {
	return Compare(a, b) == 0
}

// IsUpdateAvailable reports whether remote is strictly newer than current.
// An equal or older remote is not an error, just "no update".
func IsUpdateAvailable(current, remote Version) bool {
	return Compare(remote, current) > 0
}

// IsKillSentinel reports whether every component of v is zero ("0", "0.0.0", ...).
// The sentinel instructs deployed copies to wipe themselves rather than update.
func IsKillSentinel(v Version) bool {
	if v.v == nil {
		return false
	}
	for _, s := range v.v.Segments64() {
		if s != 0 {
			return false
		}
	}
	return true
}

// componentCount counts the dot-separated components of an already validated string.
func componentCount(s string) int {
	n := 1
	for i := range len(s) {
		if s[i] == '.' {
			n++
		}
	}
	return n
}
