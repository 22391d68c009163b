// Package version holds the flake protocol version and its ALPN names.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this library.
const Current = "1.0"

// alpnPrefix starts every flake ALPN protocol id.
const alpnPrefix = "flake/"

// Version is a parsed "major.minor" protocol version. Peers interoperate
// when their major versions match.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || major == "" || minor == "" {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}
	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	mnr, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return Version{Major: uint16(maj), Minor: uint16(mnr)}, nil
}

// MustParse is Parse for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether both versions share a major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// ALPNProtocol returns "flake/<major>".
func ALPNProtocol(major uint16) string {
	return alpnPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromALPN extracts the major version from an ALPN protocol id.
func MajorFromALPN(alpn string) (uint16, error) {
	suffix, ok := strings.CutPrefix(alpn, alpnPrefix)
	if !ok {
		return 0, fmt.Errorf("not a flake ALPN protocol: %q", alpn)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in ALPN %q: %w", alpn, err)
	}
	return uint16(major), nil
}

// SupportedALPNProtocols returns the ALPN ids this library speaks.
func SupportedALPNProtocols() []string {
	return []string{ALPNProtocol(MustParse(Current).Major)}
}

// AcceptALPN reports whether a negotiated protocol is acceptable. Peers
// that do not negotiate ALPN at all are accepted.
func AcceptALPN(negotiated string) bool {
	if negotiated == "" {
		return true
	}
	major, err := MajorFromALPN(negotiated)
	if err != nil {
		return false
	}
	return MustParse(Current).Major == major
}
