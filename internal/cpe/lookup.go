// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cpe

import (
	"context"
	"fmt"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
	"github.com/bonial-oss/vulnmatch/internal/version"
)

// LookupVulnerabilities attaches to dep every vulnerability affecting the
// version named by one of its CPE identifiers. Identifiers are left
// untouched.
func (a *Analyzer) LookupVulnerabilities(ctx context.Context, dep *dependency.Dependency) error {
	for _, id := range dep.IdentifiersOfType(dependency.IdentifierCPE) {
		c, err := nvd.ParseCPE(id.Value)
		if err != nil {
			a.logger.Debug("skipping unparsable identifier", "dependency", dep.DisplayName(), "cpe", id.Value, "error", err)
			continue
		}
		vulns, err := a.store.Vulnerabilities(ctx, c.Vendor, c.Product)
		if err != nil {
			return fmt.Errorf("loading vulnerabilities of %s: %w", id.Value, err)
		}

		var depVersion *version.Version
		if c.Version != "" && c.Version != "-" {
			depVersion = version.New(c.FullVersion())
		}
		for _, v := range vulns {
			sw, ok := matchingSoftware(depVersion, v.VulnerableSoftware)
			if !ok {
				continue
			}
			v.MatchedCPE = sw.Name
			v.MatchedAllPreviousVersions = sw.PreviousVersions
			if dep.AddVulnerability(v) {
				a.logger.Trace("vulnerability matched", "dependency", dep.DisplayName(), "cve", v.Name, "cpe", sw.Name)
			}
		}
	}
	return nil
}

// matchingSoftware returns the affected software entry that includes
// depVersion. A nil depVersion matches the first entry. When entries of
// several major versions cover all previous versions, only the entries of
// the dependency's own major version are considered.
func matchingSoftware(depVersion *version.Version, entries []dependency.VulnerableSoftware) (dependency.VulnerableSoftware, bool) {
	if len(entries) == 0 {
		return dependency.VulnerableSoftware{}, false
	}
	if depVersion == nil {
		return entries[0], true
	}

	majors := make(map[string]bool)
	for _, sw := range entries {
		if sw.PreviousVersions && sw.Version != "" && sw.Version != "-" {
			majors[version.New(sw.Version).Major()] = true
		}
	}
	sameMajorOnly := len(majors) > 1 && majors[depVersion.Major()]

	for _, sw := range entries {
		if sw.Version == "" || sw.Version == "-" {
			return sw, true
		}
		swVersion := version.New(fullVersion(sw))
		if sameMajorOnly && swVersion.Major() != depVersion.Major() {
			continue
		}
		if depVersion.Equal(swVersion) {
			return sw, true
		}
		if sw.PreviousVersions && depVersion.Compare(swVersion) <= 0 {
			return sw, true
		}
	}
	return dependency.VulnerableSoftware{}, false
}

func fullVersion(sw dependency.VulnerableSoftware) string {
	if sw.Update == "" || sw.Update == "-" {
		return sw.Version
	}
	return sw.Version + "." + sw.Update
}
