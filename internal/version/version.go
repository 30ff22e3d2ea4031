// Package version parses and compares module versions and resolves the
// version and identity tokens of dependency drafts against local and remote
// metadata.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned by Parse for strings that are not versions.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a 4-part numeric core with an optional prerelease label, e.g.
// "1.2.0", "1.2.3.4" or "2.0.0-beta1".
type Version struct {
	Core       [4]int
	parts      int
	Prerelease string
}

// Parse reads a version string. Between one and four numeric parts are
// accepted; missing parts compare as zero. A prerelease label follows a '-'.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if raw == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	var v Version
	core := raw
	if i := strings.IndexByte(raw, '-'); i >= 0 {
		core, v.Prerelease = raw[:i], raw[i+1:]
		if v.Prerelease == "" {
			return Version{}, fmt.Errorf("%w: %q has an empty prerelease label", ErrInvalidVersion, s)
		}
	}

	fields := strings.Split(core, ".")
	if len(fields) > 4 {
		return Version{}, fmt.Errorf("%w: %q has more than four parts", ErrInvalidVersion, s)
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q part %d is not a non-negative integer", ErrInvalidVersion, s, i+1)
		}
		v.Core[i] = n
	}
	v.parts = len(fields)
	return v, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.parts == 0
}

// IsPrerelease reports whether v carries a prerelease label.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// String renders the version with as many numeric parts as it was parsed
// with (at least three).
func (v Version) String() string {
	if v.IsZero() {
		return ""
	}
	n := v.parts
	if n < 3 {
		n = 3
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = strconv.Itoa(v.Core[i])
	}
	s := strings.Join(parts, ".")
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns -1, 0 or +1. Numeric cores are compared first; on equal
// cores a release outranks any prerelease and two prerelease labels are
// compared ordinally, ignoring case.
func Compare(a, b Version) int {
	for i := range a.Core {
		if a.Core[i] != b.Core[i] {
			if a.Core[i] < b.Core[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case a.Prerelease == "" && b.Prerelease == "":
		return 0
	case a.Prerelease == "":
		return 1
	case b.Prerelease == "":
		return -1
	}
	return strings.Compare(strings.ToUpper(a.Prerelease), strings.ToUpper(b.Prerelease))
}

// Less reports whether a sorts before b.
func Less(a, b Version) bool {
	return Compare(a, b) < 0
}

// Max returns the highest of the parseable versions in vs, skipping
// unparseable entries. ok is false when nothing parsed.
func Max(vs ...string) (best Version, ok bool) {
	for _, s := range vs {
		v, err := Parse(s)
		if err != nil {
			continue
		}
		if !ok || Compare(v, best) > 0 {
			best, ok = v, true
		}
	}
	return best, ok
}
