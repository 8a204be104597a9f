// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package version parses and compares the loosely formatted version strings
// found in file names, manifests and CPE entries.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

var (
	rxVersion       = regexp.MustCompile(`\d+(\.\d{1,6})+(\.?([_-](release|beta|alpha|\d+)|[a-zA-Z_-]{1,3}\d{0,8}))?`)
	rxSingleVersion = regexp.MustCompile(`\d+(\.?([_-](release|beta|alpha)|[a-zA-Z_-]{1,3}\d{1,8}))?`)
	rxParts         = regexp.MustCompile(`(\d+[a-z]{1,3}$|[a-z]+\d+|\d+|(release|beta|alpha)$)`)
)

// Version is a version string split into comparable parts.
type Version struct {
	raw   string
	parts []string
}

// New splits an already isolated version string into its parts.
func New(s string) *Version {
	v := &Version{raw: s}
	v.parts = rxParts.FindAllString(strings.ToLower(s), -1)
	if len(v.parts) == 0 {
		v.parts = []string{s}
	}
	return v
}

// Parse extracts a version from free text such as a file name. It returns
// nil when the text holds no version or holds more than one.
func Parse(text string) *Version {
	if text == "" {
		return nil
	}
	if text == "-" {
		return &Version{raw: text, parts: []string{text}}
	}
	found := rxVersion.FindAllString(text, 2)
	if len(found) == 0 {
		found = rxSingleVersion.FindAllString(text, 2)
	}
	if len(found) != 1 {
		return nil
	}
	return New(found[0])
}

func (v *Version) String() string {
	return v.raw
}

// Parts returns the comparable components, lowercased.
func (v *Version) Parts() []string {
	return append([]string(nil), v.parts...)
}

// Major returns the first component.
func (v *Version) Major() string {
	return v.parts[0]
}

// Equal reports whether both versions name the same release. Trailing zero
// components are ignored, so 1.0 equals 1.0.0, but a single component never
// equals a version with three or more.
func (v *Version) Equal(o *Version) bool {
	if v == nil || o == nil {
		return v == o
	}
	short, long := v.parts, o.parts
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 1 && len(long) >= 3 {
		return false
	}
	for i := range short {
		if short[i] != long[i] {
			return false
		}
	}
	for _, p := range long[len(short):] {
		if p != "0" {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or 1. Versions that are both valid semantic
// versions are compared with semver rules; anything else is compared part
// by part, numerically where both parts are numbers.
func (v *Version) Compare(o *Version) int {
	if v.Equal(o) {
		return 0
	}
	if a, err := semver.NewVersion(v.raw); err == nil {
		if b, err := semver.NewVersion(o.raw); err == nil {
			if c := a.Compare(b); c != 0 {
				return c
			}
		}
	}
	n := min(len(v.parts), len(o.parts))
	for i := 0; i < n; i++ {
		if c := compareParts(v.parts[i], o.parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.parts) < len(o.parts):
		return -1
	case len(v.parts) > len(o.parts):
		return 1
	}
	return 0
}

func compareParts(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// Compare compares two version strings, see Version.Compare.
func Compare(a, b string) int {
	return New(a).Compare(New(b))
}
