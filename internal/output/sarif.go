// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
)

const (
	toolName       = "vulnmatch"
	informationURI = "https://github.com/bonial-oss/vulnmatch"
)

// WriteSARIF writes one rule per CVE and one result per dependency and
// CVE, located at the dependency's file path.
func WriteSARIF(w io.Writer, deps []*dependency.Dependency) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("creating SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, informationURI)
	for _, dep := range deps {
		for _, v := range dep.Vulnerabilities() {
			level := sarifLevel(severityOf(&v))
			rule := run.AddRule(v.Name).
				WithDescription(ruleDescription(v)).
				WithHelpURI(DetailURL(v.Name)).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level}).
				WithProperties(sarif.Properties{
					"tags":              []string{"security", "vulnerability"},
					"security-severity": fmt.Sprintf("%.1f", v.CVSS.Score),
				})
			rule.ShortDescription = sarif.NewMultiformatMessageString(v.Name)

			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(artifactURI(dep))),
			)
			result := sarif.NewRuleResult(rule.ID).
				WithMessage(sarif.NewTextMessage(resultMessage(dep, v))).
				WithLevel(level).
				WithLocations([]*sarif.Location{location})
			result.PropertyBag = *sarif.NewPropertyBag()
			result.Properties["matchedCPE"] = v.MatchedCPE
			if v.Priority != nil {
				if v.Priority.Risk != nil {
					result.Properties["risk"] = *v.Priority.Risk
				}
				if v.Priority.EPSS != nil && v.Priority.EPSS.Score != nil {
					result.Properties["epss"] = *v.Priority.EPSS.Score
				}
				if v.Priority.KEV != nil {
					result.Properties["kev"] = v.Priority.KEV.Listed
				}
			}
			run.AddResult(result)
		}
	}
	report.AddRun(run)

	if err := report.PrettyWrite(w); err != nil {
		return fmt.Errorf("writing SARIF output: %w", err)
	}
	return nil
}

func ruleDescription(v dependency.Vulnerability) string {
	if v.Description != "" {
		return v.Description
	}
	return v.Name
}

func resultMessage(dep *dependency.Dependency, v dependency.Vulnerability) string {
	msg := fmt.Sprintf("%s affects %s", v.Name, dep.DisplayName())
	if v.MatchedCPE != "" {
		msg += fmt.Sprintf(" (matched %s)", v.MatchedCPE)
	}
	if v.CVSS.Score > 0 {
		msg += fmt.Sprintf(", CVSS %.1f", v.CVSS.Score)
	}
	return msg
}

// artifactURI is the file path with forward slashes and no leading slash.
func artifactURI(dep *dependency.Dependency) string {
	p := strings.ReplaceAll(dep.FilePath, "\\", "/")
	if p == "" {
		p = dep.DisplayName()
	}
	return strings.TrimPrefix(p, "/")
}

func sarifLevel(severity string) string {
	switch strings.ToUpper(severity) {
	case "CRITICAL", "HIGH":
		return "error"
	case "MEDIUM":
		return "warning"
	case "LOW", "UNKNOWN":
		return "note"
	default:
		return "none"
	}
}
