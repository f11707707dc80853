package domain

import (
	"github.com/hashicorp/go-version"
)

// Version wraps an optional resource version. A zero Version (Raw ==
// "") means "no version requested" — the common case for plain URL
// resources — and always compares equal to another zero Version.
type Version struct {
	Raw    string
	parsed *version.Version
}

// NoVersion is the absent-version identity used by resources that are
// not versioned.
var NoVersion = Version{}

// ParseVersion parses a version string the way a resource's requested
// version is populated. An empty string is accepted and yields
// NoVersion.
func ParseVersion(raw string) (Version, error) {
	if raw == "" {
		return NoVersion, nil
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return Version{}, err
	}
	return Version{Raw: raw, parsed: v}, nil
}

// IsZero reports whether this is the absent-version identity.
func (v Version) IsZero() bool { return v.Raw == "" }

// String returns the original version string, or "" for NoVersion.
func (v Version) String() string { return v.Raw }

// Equal reports whether two versions denote the same identity. Two
// zero versions are equal; a zero and non-zero version are not.
func (v Version) Equal(o Version) bool {
	if v.IsZero() || o.IsZero() {
		return v.IsZero() == o.IsZero()
	}
	if v.parsed != nil && o.parsed != nil {
		return v.parsed.Equal(o.parsed)
	}
	return v.Raw == o.Raw
}
