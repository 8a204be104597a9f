// SPDX-FileCopyrightText: 2025 Anchore, Inc.
// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Risk score calculation based on the formula from Grype
// (https://github.com/anchore/grype), licensed under Apache-2.0.

package enricher

import (
	"math"
	"strings"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

// Match describes how a vulnerability was attached to a dependency.
type Match struct {
	// Confidence of the CPE identifier the match went through. Zero when
	// unknown.
	Confidence dependency.Confidence
	// PreviousVersions is set when the match came from an "and previous
	// versions" entry rather than the identified version itself.
	PreviousVersions bool
}

// RiskScore computes a composite risk score (0.0–100.0) from EPSS, KEV,
// severity and the CVSS base score, discounted by the certainty of the
// match. A zero base score leaves the severity band alone.
func RiskScore(epss *types.EPSSEntry, kev *types.KEVEntry, severity string, cvssBaseScore float64, match Match) float64 {
	t := threat(epss, kev)
	s := severityScore(severity, cvssBaseScore)
	k := kevModifier(kev)
	return math.Min(t*s*k, 1.0) * matchModifier(match) * 100.0
}

// matchModifier applies after the cap.
func matchModifier(m Match) float64 {
	f := 1.0
	switch m.Confidence {
	case dependency.Medium:
		f = 0.9
	case dependency.Low:
		f = 0.8
	}
	if m.PreviousVersions {
		f *= 0.95
	}
	return f
}

func threat(epss *types.EPSSEntry, kev *types.KEVEntry) float64 {
	if kev != nil {
		return 1.0
	}
	if epss != nil {
		return epss.Score
	}
	return 0.0
}

func kevModifier(kev *types.KEVEntry) float64 {
	if kev == nil {
		return 1.0
	}
	if strings.EqualFold(kev.KnownRansomwareCampaignUse, "known") {
		return 1.1
	}
	return 1.05
}

func severityScore(severity string, cvssBaseScore float64) float64 {
	strScore := severityToScore(severity) / 10.0
	base := cvssBaseScore / 10.0
	if base == 0 {
		return strScore
	}
	return (strScore + base) / 2.0
}

func severityToScore(severity string) float64 {
	switch strings.ToLower(severity) {
	case "negligible":
		return 0.5
	case "low":
		return 3.0
	case "medium":
		return 5.0
	case "high":
		return 7.5
	case "critical":
		return 9.0
	default:
		return 5.0
	}
}
