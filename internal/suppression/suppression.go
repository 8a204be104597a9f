// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package suppression hides false-positive identifiers and accepted
// vulnerabilities from a check.
package suppression

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/download"
)

// Pattern matches a string exactly (ignoring case) or, when written as
// {regex: "..."}, against a regular expression.
type Pattern struct {
	Value string
	re    *regexp.Regexp
}

func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Value = node.Value
		return nil
	case yaml.MappingNode:
		var m struct {
			Regex string `yaml:"regex"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.Regex == "" {
			return fmt.Errorf("line %d: pattern needs a regex", node.Line)
		}
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		p.Value, p.re = m.Regex, re
		return nil
	}
	return fmt.Errorf("line %d: pattern must be a string or a {regex: ...} mapping", node.Line)
}

// Match reports whether s matches the pattern.
func (p Pattern) Match(s string) bool {
	if p.re != nil {
		return p.re.MatchString(s)
	}
	return strings.EqualFold(p.Value, s)
}

// Rule suppresses the identifiers and vulnerabilities it names on the
// dependencies it applies to. An empty FilePath or SHA1 applies to every
// dependency. Vulnerabilities are suppressed when any of CVE, CWE or
// CVSSBelow matches.
type Rule struct {
	Notes     string    `yaml:"notes"`
	FilePath  *Pattern  `yaml:"file_path"`
	SHA1      string    `yaml:"sha1"`
	CPE       []Pattern `yaml:"cpe"`
	CVE       []string  `yaml:"cve"`
	CWE       []string  `yaml:"cwe"`
	CVSSBelow float64   `yaml:"cvss_below"`
	// Until expires the rule after the given date (YYYY-MM-DD).
	Until string `yaml:"until"`

	until time.Time
}

type file struct {
	Suppress []Rule `yaml:"suppress"`
}

// Rules is a loaded suppression file.
type Rules struct {
	rules []Rule
	now   func() time.Time
}

// Parse decodes a suppression file.
func Parse(data []byte) (*Rules, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing suppression rules: %w", err)
	}
	for i := range f.Suppress {
		r := &f.Suppress[i]
		if len(r.CPE) == 0 && len(r.CVE) == 0 && len(r.CWE) == 0 && r.CVSSBelow == 0 {
			return nil, fmt.Errorf("suppression rule %d suppresses nothing", i+1)
		}
		if r.Until != "" {
			t, err := time.Parse(time.DateOnly, r.Until)
			if err != nil {
				return nil, fmt.Errorf("suppression rule %d: invalid until %q", i+1, r.Until)
			}
			r.until = t
		}
	}
	return &Rules{rules: f.Suppress, now: time.Now}, nil
}

// Load reads the rules at location, a file path or URL. The direct fetcher
// is tried first, then proxied when it is not nil. An empty location
// yields an empty rule set.
func Load(ctx context.Context, location string, direct, proxied *download.Fetcher) (*Rules, error) {
	if location == "" {
		return &Rules{now: time.Now}, nil
	}
	if direct == nil {
		return nil, errors.New("no fetcher for suppression rules")
	}
	data, err := download.FetchWithFallback(ctx, location, direct, proxied)
	if err != nil {
		return nil, fmt.Errorf("loading suppression rules: %w", err)
	}
	return Parse(data)
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

func (r *Rules) active() []Rule {
	if r == nil {
		return nil
	}
	now := r.now()
	var out []Rule
	for _, rule := range r.rules {
		if !rule.until.IsZero() && now.After(rule.until.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// ApplyIdentifiers moves the CPE identifiers matched by a rule to the
// suppressed identifiers of dep. It returns the number suppressed.
func (r *Rules) ApplyIdentifiers(dep *dependency.Dependency) int {
	n := 0
	for _, rule := range r.active() {
		if len(rule.CPE) == 0 || !rule.appliesTo(dep) {
			continue
		}
		for _, id := range dep.IdentifiersOfType(dependency.IdentifierCPE) {
			if rule.matchesCPE(id.Value) && dep.SuppressIdentifier(id) {
				n++
			}
		}
	}
	return n
}

// ApplyVulnerabilities moves the vulnerabilities matched by a rule to the
// suppressed vulnerabilities of dep. Vulnerabilities matched through a
// suppressed CPE are suppressed as well. It returns the number suppressed.
func (r *Rules) ApplyVulnerabilities(dep *dependency.Dependency) int {
	n := 0
	for _, rule := range r.active() {
		if !rule.appliesTo(dep) {
			continue
		}
		for _, v := range dep.Vulnerabilities() {
			if rule.matchesVulnerability(v) && dep.SuppressVulnerability(v.Name) {
				n++
			}
		}
	}
	return n
}

// Apply runs ApplyIdentifiers then ApplyVulnerabilities.
func (r *Rules) Apply(dep *dependency.Dependency) int {
	return r.ApplyIdentifiers(dep) + r.ApplyVulnerabilities(dep)
}

func (rule Rule) appliesTo(dep *dependency.Dependency) bool {
	if rule.FilePath != nil && !rule.FilePath.Match(dep.FilePath) {
		return false
	}
	if rule.SHA1 != "" && !strings.EqualFold(rule.SHA1, dep.SHA1) {
		return false
	}
	return true
}

// matchesCPE reports whether name is one of the rule's CPEs or starts with
// one followed by a component separator.
func (rule Rule) matchesCPE(name string) bool {
	for _, p := range rule.CPE {
		if p.re != nil {
			if p.re.MatchString(name) {
				return true
			}
			continue
		}
		if cpePrefix(p.Value, name) {
			return true
		}
	}
	return false
}

func cpePrefix(prefix, name string) bool {
	prefix, name = strings.ToLower(prefix), strings.ToLower(name)
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	return len(name) == len(prefix) || strings.HasSuffix(prefix, ":") || name[len(prefix)] == ':'
}

func (rule Rule) matchesVulnerability(v dependency.Vulnerability) bool {
	for _, cve := range rule.CVE {
		if strings.EqualFold(cve, v.Name) {
			return true
		}
	}
	if v.CWE != "" {
		for _, cwe := range rule.CWE {
			if normalizeCWE(cwe) == normalizeCWE(v.CWE) {
				return true
			}
		}
	}
	if rule.CVSSBelow > 0 && v.CVSS.Score < rule.CVSSBelow {
		return true
	}
	if v.MatchedCPE != "" && len(rule.CPE) > 0 && rule.matchesCPE(v.MatchedCPE) {
		return true
	}
	return false
}

// normalizeCWE maps "CWE-79", "cwe-79" and "79" to the same value.
func normalizeCWE(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "CWE-")
}
