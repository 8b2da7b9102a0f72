package hotwire

import (
	"fmt"
	"strconv"
)

// Version of a module: Major.Minor with an optional opaque Build tag.
type Version struct {
	Major    uint32
	Minor    uint32
	Build    string
	hasBuild bool
}

// NewVersion creates a version; a build argument, even empty, marks the build as present.
func NewVersion(major, minor uint32, build ...string) Version {
	v := Version{Major: major, Minor: minor}
	if len(build) > 0 {
		v.Build = build[0]
		v.hasBuild = true
	}
	return v
}

// HasBuild reports whether a build tag was declared.
func (v Version) HasBuild() bool {
	return v.hasBuild
}

func (v Version) String() string {
	if v.hasBuild {
		return fmt.Sprintf("%d.%d+%s", v.Major, v.Minor, v.Build)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion reads Major.Minor[+Build]. Major and Minor are non-empty decimal runs; everything
// after the first '+' is the build, verbatim and possibly empty.
func ParseVersion(s string) (v Version, ok bool) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == 0 || i == len(s) || s[i] != '.' {
		return Version{}, false
	}
	major, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return Version{}, false
	}
	j := i + 1
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j == i+1 || (j < len(s) && s[j] != '+') {
		return Version{}, false
	}
	minor, err := strconv.ParseUint(s[i+1:j], 10, 32)
	if err != nil {
		return Version{}, false
	}
	v = Version{Major: uint32(major), Minor: uint32(minor)}
	if j < len(s) {
		v.Build = s[j+1:]
		v.hasBuild = true
	}
	return v, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// reserved reports whether an identifier starts with a character kept for range syntax.
func reserved(s string) bool {
	return s != "" && (s[0] == '>' || s[0] == '<')
}
