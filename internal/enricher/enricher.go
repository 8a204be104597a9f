// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package enricher

import (
	"fmt"

	"github.com/bonial-oss/vulnmatch/internal/datasource/epss"
	"github.com/bonial-oss/vulnmatch/internal/datasource/kev"
	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

// Enricher attaches EPSS and KEV data to the vulnerabilities matched
// against dependencies.
type Enricher struct {
	epss *epss.Source
	kev  *kev.Source
}

// Config holds filtering and policy options for enrichment.
type Config struct {
	EPSSThreshold       float64
	KEVOnly             bool
	FailOnKEV           bool
	FailOnEPSSThreshold float64
	FailOnCVSS          float64
}

// Result holds the enriched dependencies and the policy outcome.
type Result struct {
	Dependencies    []*dependency.Dependency
	PolicyViolation bool
	// Violations describes each vulnerability that failed a policy.
	Violations []string
}

// New creates a new Enricher with the given data sources.
// Either source may be nil if disabled.
func New(epssSource *epss.Source, kevSource *kev.Source) *Enricher {
	return &Enricher{
		epss: epssSource,
		kev:  kevSource,
	}
}

// Enrich adds EPSS/KEV data to every vulnerability of deps, applies the
// filters and checks the policies. Filtered vulnerabilities are removed
// from the dependencies.
func (e *Enricher) Enrich(deps []*dependency.Dependency, cfg Config) *Result {
	for _, dep := range deps {
		confidence := identifierConfidence(dep)
		dep.UpdateVulnerabilities(func(v *dependency.Vulnerability) {
			v.Priority = e.priority(v, Match{Confidence: confidence, PreviousVersions: v.MatchedAllPreviousVersions})
		})
		if cfg.EPSSThreshold > 0 || cfg.KEVOnly {
			dep.RetainVulnerabilities(func(v dependency.Vulnerability) bool {
				if cfg.EPSSThreshold > 0 && (v.Priority.EPSS == nil || v.Priority.EPSS.Score == nil ||
					*v.Priority.EPSS.Score < cfg.EPSSThreshold) {
					return false
				}
				if cfg.KEVOnly && !v.Priority.Exploited() {
					return false
				}
				return true
			})
		}
	}

	// Policies flag, they never remove.
	result := &Result{Dependencies: deps}
	for _, dep := range deps {
		for _, v := range dep.Vulnerabilities() {
			for _, reason := range violations(v, cfg) {
				result.PolicyViolation = true
				result.Violations = append(result.Violations,
					fmt.Sprintf("%s in %s: %s", v.Name, dep.DisplayName(), reason))
			}
		}
	}
	return result
}

// identifierConfidence returns the highest confidence among the CPE
// identifiers of dep.
func identifierConfidence(dep *dependency.Dependency) dependency.Confidence {
	var c dependency.Confidence
	for _, id := range dep.IdentifiersOfType(dependency.IdentifierCPE) {
		c = max(c, id.Confidence)
	}
	return c
}

func (e *Enricher) priority(v *dependency.Vulnerability, match Match) *types.Priority {
	p := &types.Priority{}
	var epssEntry *types.EPSSEntry
	var kevEntry *types.KEVEntry

	if e.epss != nil {
		p.EPSS = &types.EPSSData{
			ModelVersion: e.epss.ModelVersion(),
			ScoreDate:    e.epss.ScoreDate(),
		}
		// Score and percentile stay nil for unscored CVEs.
		if epssEntry = e.epss.Lookup(v.Name); epssEntry != nil {
			score := epssEntry.Score
			percentile := epssEntry.Percentile
			p.EPSS.Score = &score
			p.EPSS.Percentile = &percentile
		}
	}

	if e.kev != nil {
		p.KEV = &types.KEVData{}
		if kevEntry = e.kev.Lookup(v.Name); kevEntry != nil {
			p.KEV = &types.KEVData{
				Listed:                     true,
				DateAdded:                  kevEntry.DateAdded,
				DueDate:                    kevEntry.DueDate,
				KnownRansomwareCampaignUse: kevEntry.KnownRansomwareCampaignUse,
			}
		}
	}

	if e.epss != nil && e.kev != nil {
		risk := RiskScore(epssEntry, kevEntry, v.Severity, v.CVSS.Score, match)
		p.Risk = &risk
	}
	return p
}

func violations(v dependency.Vulnerability, cfg Config) []string {
	var reasons []string
	if cfg.FailOnCVSS > 0 && v.CVSS.Score >= cfg.FailOnCVSS {
		reasons = append(reasons, fmt.Sprintf("CVSS %.1f >= %.1f", v.CVSS.Score, cfg.FailOnCVSS))
	}
	if cfg.FailOnKEV && v.Priority.Exploited() {
		reasons = append(reasons, "listed as known exploited")
	}
	if cfg.FailOnEPSSThreshold > 0 && v.Priority.EPSSScore() >= cfg.FailOnEPSSThreshold {
		reasons = append(reasons, fmt.Sprintf("EPSS %.3f >= %.3f", v.Priority.EPSSScore(), cfg.FailOnEPSSThreshold))
	}
	return reasons
}
