// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package dependency

import (
	"fmt"
	"strings"
)

// Confidence is the ordinal certainty attached to evidence and identifiers.
type Confidence int

const (
	Low Confidence = iota + 1
	Medium
	High
	Highest
)

// Levels lists the confidence levels from most to least certain.
var Levels = []Confidence{Highest, High, Medium, Low}

var confidenceNames = map[Confidence]string{
	Low:     "LOW",
	Medium:  "MEDIUM",
	High:    "HIGH",
	Highest: "HIGHEST",
}

func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

// ParseConfidence parses LOW, MEDIUM, HIGH or HIGHEST (case-insensitive).
func ParseConfidence(s string) (Confidence, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for c, name := range confidenceNames {
		if name == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown confidence %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) {
	if _, ok := confidenceNames[c]; !ok {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
