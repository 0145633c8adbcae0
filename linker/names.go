package linker

import (
	"strings"
)

// Version represents a semantic version for interface matching
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "0.2.0" or "0.2"
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	var v Version
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	for i, p := range parts {
		if p == "" {
			return Version{}, false
		}
		var n uint32
		for _, c := range p {
			if c < '0' || c > '9' {
				return Version{}, false
			}
			// Check for overflow before multiplication
			if n > 429496729 || (n == 429496729 && c > '5') {
				return Version{}, false
			}
			n = n*10 + uint32(c-'0')
		}
		switch i {
		case 0:
			v.Major = n
		case 1:
			v.Minor = n
		case 2:
			v.Patch = n
		}
	}
	return v, true
}

// Compatible returns true if v can stand in for want: same major, and
// v is not older than want.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// splitVersion splits "ns:pkg/iface@1.2.3" into the unversioned path and
// its version.
func splitVersion(path string) (string, Version, bool) {
	base, ver, ok := strings.Cut(path, "@")
	if !ok {
		return path, Version{}, false
	}
	v, ok := ParseVersion(ver)
	if !ok {
		return path, Version{}, false
	}
	return base, v, true
}

// matchName reports whether a binding registered under name serves an
// import of the given core module path. Exact paths always match; a
// versioned registration also serves older compatible imports of the same
// interface.
func matchName(name, module string) bool {
	if name == module {
		return true
	}
	nb, nv, nok := splitVersion(name)
	mb, mv, mok := splitVersion(module)
	return nok && mok && nb == mb && nv.Compatible(mv)
}
