// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

// Helper to create a float64 pointer.
func floatPtr(v float64) *float64 {
	return &v
}

// makeTestDependencies builds one dependency with 3 vulnerabilities. The
// dependency keeps them ordered by name.
func makeTestDependencies() []*dependency.Dependency {
	dep := dependency.New("/app/lib/struts2-core-2.1.2.jar")
	dep.AddIdentifier(dependency.Identifier{Type: dependency.IdentifierCPE, Value: "cpe:/a:apache:struts:2.1.2", Confidence: dependency.Highest})
	dep.AddVulnerability(dependency.Vulnerability{
		Name:        "CVE-2024-1234",
		Description: "Example high vulnerability",
		Severity:    "HIGH",
		CVSS:        dependency.CVSS{Score: 9.3},
		MatchedCPE:  "cpe:/a:apache:struts:2.1.2",
		Priority: &types.Priority{
			Risk: floatPtr(95.0),
			EPSS: &types.EPSSData{Score: floatPtr(0.97), Percentile: floatPtr(0.998)},
			KEV:  &types.KEVData{Listed: true, DateAdded: "2024-01-15"},
		},
	})
	dep.AddVulnerability(dependency.Vulnerability{
		Name:        "CVE-2023-5678",
		Description: "Another medium vulnerability",
		Severity:    "MEDIUM",
		CVSS:        dependency.CVSS{Score: 6.8},
		MatchedCPE:  "cpe:/a:apache:struts:2.1.2",
		Priority: &types.Priority{
			Risk: floatPtr(31.5),
			EPSS: &types.EPSSData{Score: floatPtr(0.42), Percentile: floatPtr(0.873)},
			KEV:  &types.KEVData{Listed: false},
		},
	})
	dep.AddVulnerability(dependency.Vulnerability{
		Name:       "CVE-2023-9999",
		Severity:   "LOW",
		CVSS:       dependency.CVSS{Score: 2.1},
		MatchedCPE: "cpe:/a:apache:struts:2.1.1",
		Priority: &types.Priority{
			Risk: floatPtr(0.0),
			EPSS: &types.EPSSData{},
			KEV:  &types.KEVData{Listed: false},
		},
		MatchedAllPreviousVersions: true,
	})
	return []*dependency.Dependency{dep}
}

func TestTableOutput_AllColumns(t *testing.T) {
	cfg := TableConfig{
		ShowEPSS: true,
		ShowKEV:  true,
		ShowRisk: true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, makeTestDependencies(), cfg))

	output := buf.String()

	// Verify dependency header.
	assert.Contains(t, output, "struts2-core-2.1.2.jar\n"+strings.Repeat("=", 22))
	assert.Contains(t, output, "Identifiers: cpe:/a:apache:struts:2.1.2 (HIGHEST)")
	assert.Contains(t, output, "Total: 3 (UNKNOWN: 0, LOW: 1, MEDIUM: 1, HIGH: 1, CRITICAL: 0)")

	// Verify box-drawing characters.
	for _, ch := range []string{"┌", "┘", "│", "├"} {
		assert.Contains(t, output, ch)
	}

	for _, col := range []string{"Matched CPE", "Vulnerability", "Severity", "CVSS",
		"Description", "Risk", "EPSS", "EPSS %ile", "KEV"} {
		assert.Contains(t, output, col)
	}

	for _, expected := range []string{
		"CVE-2024-1234", "HIGH", "9.3", "95.0", "0.97", "99.8", "YES",
		"CVE-2023-5678", "MEDIUM", "6.8", "31.5", "0.42", "87.3",
		"CVE-2023-9999", "LOW",
	} {
		assert.Contains(t, output, expected)
	}
}

func TestTableOutput_NoEPSS(t *testing.T) {
	cfg := TableConfig{ShowKEV: true}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, makeTestDependencies(), cfg))

	output := buf.String()
	assert.NotContains(t, output, "EPSS")
	assert.NotContains(t, output, "Risk")
	assert.Contains(t, output, "KEV")
}

func TestTableOutput_NoKEV(t *testing.T) {
	cfg := TableConfig{ShowEPSS: true}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, makeTestDependencies(), cfg))

	output := buf.String()
	assert.NotContains(t, output, "KEV")
	assert.Contains(t, output, "EPSS")
}

func TestTableOutput_Sort(t *testing.T) {
	tests := []struct {
		sortBy string
		want   []string
	}{
		// Stored order is by name.
		{"", []string{"CVE-2023-5678", "CVE-2023-9999", "CVE-2024-1234"}},
		{"cve", []string{"CVE-2023-5678", "CVE-2023-9999", "CVE-2024-1234"}},
		{"risk", []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2023-9999"}},
		{"epss", []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2023-9999"}},
		{"severity", []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2023-9999"}},
		{"cvss", []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2023-9999"}},
	}
	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteTable(&buf, makeTestDependencies(), TableConfig{SortBy: tt.sortBy}))
			assertOrder(t, buf.String(), tt.want...)
		})
	}
}

func TestTableOutput_EmptyReport(t *testing.T) {
	cfg := TableConfig{ShowEPSS: true, ShowKEV: true, ShowRisk: true}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, nil, cfg))

	output := buf.String()

	// Should have box structure with header only (no data rows).
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "Matched CPE")
	assert.NotContains(t, output, "===")
}

func TestTableOutput_NilPriority(t *testing.T) {
	dep := dependency.New("/lib/pkg-1.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", CVSS: dependency.CVSS{Score: 7.5}})
	cfg := TableConfig{ShowEPSS: true, ShowKEV: true, ShowRisk: true}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, cfg))

	output := buf.String()
	assert.Contains(t, output, "CVE-2024-0001")
	assert.Contains(t, output, "NO")
	// Severity falls back to the CVSS band.
	assert.Contains(t, output, "HIGH")
}

func TestTableOutput_MultipleDependencies(t *testing.T) {
	first := dependency.New("/lib/one-1.0.jar")
	first.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", Severity: "HIGH", CVSS: dependency.CVSS{Score: 7.5}})
	clean := dependency.New("/lib/clean-1.0.jar")
	second := dependency.New("/lib/two-2.0.jar")
	second.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0002", Severity: "MEDIUM", CVSS: dependency.CVSS{Score: 5.0}})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{first, clean, second}, TableConfig{}))

	output := buf.String()
	assert.Contains(t, output, "one-1.0.jar")
	assert.Contains(t, output, "two-2.0.jar")
	assert.NotContains(t, output, "clean-1.0.jar")
	assert.Contains(t, output, "Total: 1 (UNKNOWN: 0, LOW: 0, MEDIUM: 0, HIGH: 1, CRITICAL: 0)")
	assert.Contains(t, output, "Total: 1 (UNKNOWN: 0, LOW: 0, MEDIUM: 1, HIGH: 0, CRITICAL: 0)")

	// Each dependency should have its own box table.
	assert.Equal(t, 2, strings.Count(output, "┌"))
}

func TestTableOutput_DescriptionTruncation(t *testing.T) {
	long := "This is a very long vulnerability description that exceeds the maximum word count and should be truncated with ellipsis at the end"
	dep := dependency.New("/lib/pkg-1.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", Severity: "LOW", Description: long})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, TableConfig{}))

	output := buf.String()
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "at the end")
}

func TestTableOutput_DescriptionWithURL(t *testing.T) {
	dep := dependency.New("/lib/pkg-1.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", Severity: "LOW", Description: "Example vulnerability"})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, TableConfig{}))

	output := buf.String()
	assert.Contains(t, output, "Example vulnerability")
	assert.Contains(t, output, "https://nvd.nist.gov/vuln/detail/CVE-2024-0001")
}

func TestRowCells(t *testing.T) {
	v := &dependency.Vulnerability{
		Name:                       "CVE-2010-1870",
		CVSS:                       dependency.CVSS{Score: 5.0},
		MatchedCPE:                 "cpe:/a:apache:struts:2.1.8",
		MatchedAllPreviousVersions: true,
	}
	cells := rowCells(v, TableConfig{ShowRisk: true, ShowKEV: true})
	assert.Equal(t, []string{
		"cpe:/a:apache:struts:2.1.8 and previous",
		"CVE-2010-1870",
		"MEDIUM",
		"5.0",
		"https://nvd.nist.gov/vuln/detail/CVE-2010-1870",
		"-",
		"NO",
	}, cells)
}

func TestTableOutput_SuppressedSection(t *testing.T) {
	deps := makeTestDependencies()
	require.True(t, deps[0].SuppressVulnerability("CVE-2023-9999"))
	require.True(t, deps[0].SuppressIdentifier(dependency.Identifier{Type: dependency.IdentifierCPE, Value: "cpe:/a:apache:struts:2.1.2"}))
	cfg := TableConfig{ShowEPSS: true, ShowKEV: true, ShowRisk: true}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, deps, cfg))

	output := buf.String()

	title := "Suppressed Vulnerabilities (Total: 1)"
	assert.Contains(t, output, title)
	assert.Contains(t, output, strings.Repeat("=", len(title)))
	assert.Contains(t, output, "Suppressed identifiers: cpe:/a:apache:struts:2.1.2 (HIGHEST)")
	assert.NotContains(t, output, "Identifiers:")
	assert.Contains(t, output, "Total: 2 (")

	// Should have 2 box tables (regular + suppressed).
	assert.Equal(t, 2, strings.Count(output, "┌"))
	assertOrder(t, output, title, "CVE-2023-9999")
}

func TestTableOutput_SuppressedHidden(t *testing.T) {
	deps := makeTestDependencies()
	require.True(t, deps[0].SuppressVulnerability("CVE-2023-9999"))

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, deps, TableConfig{HideSuppressed: true}))

	output := buf.String()
	assert.NotContains(t, output, "Suppressed")
	assert.NotContains(t, output, "CVE-2023-9999")
}

func TestTableOutput_SuppressedOnlyDependency(t *testing.T) {
	dep := dependency.New("/lib/quiet-3.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0003", Severity: "LOW"})
	require.True(t, dep.SuppressVulnerability("CVE-2024-0003"))

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, TableConfig{}))

	output := buf.String()
	assert.Contains(t, output, "quiet-3.0.jar")
	assert.Contains(t, output, "Total: 0 (")
	assert.Contains(t, output, "Suppressed Vulnerabilities (Total: 1)")
	assert.Equal(t, 1, strings.Count(output, "┌"))
	assert.Contains(t, output, "CVE-2024-0003")
}

func TestTableOutput_AutoMerge(t *testing.T) {
	// Two vulns with the same severity should have auto-merged severity cells.
	dep := dependency.New("/lib/pkg-1.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", Severity: "HIGH", CVSS: dependency.CVSS{Score: 7.1}})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0002", Severity: "HIGH", CVSS: dependency.CVSS{Score: 7.2}})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, TableConfig{}))

	output := buf.String()
	headerIdx := strings.Index(output, "Severity")
	afterHeader := output[headerIdx+1:]
	assert.Equal(t, 1, strings.Count(afterHeader, "HIGH"))
}

func TestTableOutput_RowSeparators(t *testing.T) {
	dep := dependency.New("/lib/pkg-1.0.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0001", Severity: "HIGH"})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-0002", Severity: "MEDIUM"})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*dependency.Dependency{dep}, TableConfig{}))

	// With 2 rows: 1 header sep + 1 row sep = at least 2 ├ lines.
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "├"), 2)
}

// assertOrder verifies that the given strings appear in order in the output.
func assertOrder(t *testing.T, output string, items ...string) {
	t.Helper()
	prev := -1
	for _, item := range items {
		idx := strings.Index(output, item)
		require.NotEqual(t, -1, idx, "missing %q in output", item)
		assert.Greater(t, idx, prev, "%q should appear after previous item", item)
		prev = idx
	}
}
