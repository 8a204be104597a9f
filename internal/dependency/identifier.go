// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package dependency

import "strings"

// Identifier types.
const (
	IdentifierCPE   = "cpe"
	IdentifierMaven = "maven"
)

// Identifier records what a dependency has been identified as.
type Identifier struct {
	Type       string     `json:"type"`
	Value      string     `json:"value"`
	URL        string     `json:"url,omitempty"`
	Confidence Confidence `json:"confidence"`
}

func (i Identifier) key() string {
	return normalize(i.Type) + "\x00" + normalize(i.Value)
}

// CompareIdentifiers orders identifiers by value, then type, ignoring case.
func CompareIdentifiers(a, b Identifier) int {
	if c := strings.Compare(normalize(a.Value), normalize(b.Value)); c != 0 {
		return c
	}
	return strings.Compare(normalize(a.Type), normalize(b.Type))
}
