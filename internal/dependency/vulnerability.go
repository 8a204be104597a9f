// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package dependency

import (
	"github.com/bonial-oss/vulnmatch/internal/types"
)

// Vulnerability is a CVE record matched against a dependency.
type Vulnerability struct {
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	CWE                string               `json:"cwe,omitempty"`
	Severity           string               `json:"severity,omitempty"`
	CVSS               CVSS                 `json:"cvss"`
	Published          string               `json:"published,omitempty"`
	Modified           string               `json:"modified,omitempty"`
	References         []Reference          `json:"references,omitempty"`
	VulnerableSoftware []VulnerableSoftware `json:"vulnerableSoftware,omitempty"`

	// MatchedCPE is the affected software entry that included the
	// dependency's version.
	MatchedCPE                 string `json:"matchedCPE,omitempty"`
	MatchedAllPreviousVersions bool   `json:"matchedAllPreviousVersions,omitempty"`

	Priority *types.Priority `json:"priority,omitempty"`
}

// CVSS holds the version 2 base metrics published with the NVD feeds.
type CVSS struct {
	Score                 float64 `json:"score"`
	AccessVector          string  `json:"accessVector,omitempty"`
	AccessComplexity      string  `json:"accessComplexity,omitempty"`
	Authentication        string  `json:"authentication,omitempty"`
	ConfidentialityImpact string  `json:"confidentialityImpact,omitempty"`
	IntegrityImpact       string  `json:"integrityImpact,omitempty"`
	AvailabilityImpact    string  `json:"availabilityImpact,omitempty"`
}

// Reference is a link published with a vulnerability.
type Reference struct {
	Source string `json:"source,omitempty"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
}

// VulnerableSoftware is one affected CPE of a vulnerability. When
// PreviousVersions is set the entry covers its version and every earlier
// one.
type VulnerableSoftware struct {
	Name             string `json:"name"`
	Vendor           string `json:"vendor"`
	Product          string `json:"product"`
	Version          string `json:"version,omitempty"`
	Update           string `json:"update,omitempty"`
	PreviousVersions bool   `json:"previousVersions,omitempty"`
}

// SeverityFromScore maps a CVSS v2 base score to the NVD severity band.
func SeverityFromScore(score float64) string {
	switch {
	case score >= 7.0:
		return "HIGH"
	case score >= 4.0:
		return "MEDIUM"
	case score > 0:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}
