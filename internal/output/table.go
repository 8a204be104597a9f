// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	aqtable "github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
)

const (
	maxDescriptionWords = 12
	nvdDetailURL        = "https://nvd.nist.gov/vuln/detail/"
)

// TableConfig controls which columns are displayed and how rows are sorted.
type TableConfig struct {
	ShowEPSS       bool
	ShowKEV        bool
	ShowRisk       bool   // true only when both EPSS and KEV enabled
	SortBy         string // "risk", "epss", "severity", "cvss", "cve", "" (preserve order)
	HideSuppressed bool   // exclude suppressed vulnerabilities section
	IsTerminal     bool   // true when output goes to a terminal (enables ANSI styling)
}

// IsOutputToTerminal returns true if the writer is stdout connected to a
// character device (TTY).
func IsOutputToTerminal(output io.Writer) bool {
	return output == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
}

// vulnRow holds a reference to a vulnerability for table rendering.
type vulnRow struct {
	vuln  *dependency.Vulnerability
	index int // original index for stable sort
}

// WriteTable writes the matched vulnerabilities as one table per
// dependency. Dependencies without findings are skipped.
func WriteTable(w io.Writer, deps []*dependency.Dependency, cfg TableConfig) error {
	first := true
	for _, dep := range deps {
		vulns := dep.Vulnerabilities()
		suppressed := dep.SuppressedVulnerabilities()
		hasSuppressed := !cfg.HideSuppressed && len(suppressed) > 0

		if len(vulns) == 0 && !hasSuppressed {
			continue
		}

		if !first {
			fmt.Fprintln(w)
		}
		first = false

		writeDependencyHeader(w, dep, vulns, cfg.IsTerminal)

		if len(vulns) > 0 {
			writeVulnTable(w, toRows(vulns, cfg.SortBy), cfg)
		}

		if hasSuppressed {
			writeSuppressedSection(w, toRows(suppressed, cfg.SortBy), cfg)
		}
	}

	if first {
		writeVulnTable(w, nil, cfg)
	}

	return nil
}

func toRows(vulns []dependency.Vulnerability, sortBy string) []vulnRow {
	rows := make([]vulnRow, len(vulns))
	for j := range vulns {
		rows[j] = vulnRow{vuln: &vulns[j], index: j}
	}
	sortRows(rows, sortBy)
	return rows
}

// writeDependencyHeader writes the dependency name, its identifiers and a
// severity summary.
func writeDependencyHeader(w io.Writer, dep *dependency.Dependency, vulns []dependency.Vulnerability, isTerminal bool) {
	name := dep.DisplayName()
	if isTerminal {
		_ = tml.Fprintf(w, "<underline><bold>%s</bold></underline>\n", name)
	} else {
		fmt.Fprintln(w, name)
		fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(name)))
	}
	if ids := identifierValues(dep.Identifiers()); ids != "" {
		fmt.Fprintf(w, "Identifiers: %s\n", ids)
	}
	if ids := identifierValues(dep.SuppressedIdentifiers()); ids != "" {
		fmt.Fprintf(w, "Suppressed identifiers: %s\n", ids)
	}
	fmt.Fprintln(w, severitySummary(vulns))
	fmt.Fprintln(w)
}

func identifierValues(ids []dependency.Identifier) string {
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, fmt.Sprintf("%s (%s)", id.Value, id.Confidence))
	}
	return strings.Join(values, ", ")
}

// newTableWriter creates a table writer with borders, auto-merge and row
// separators. When isTerminal is true, header and line styles use ANSI
// formatting.
func newTableWriter(w io.Writer, isTerminal bool) *aqtable.Table {
	tw := aqtable.New(w)
	if isTerminal {
		tw.SetHeaderStyle(aqtable.StyleBold)
		tw.SetLineStyle(aqtable.StyleDim)
	}
	tw.SetBorders(true)
	tw.SetAutoMerge(true)
	tw.SetRowLines(true)
	return tw
}

// writeVulnTable renders a vulnerability table using aquasecurity/table.
func writeVulnTable(w io.Writer, rows []vulnRow, cfg TableConfig) {
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders(headerNames(cfg)...)
	for _, row := range rows {
		tw.AddRow(rowCells(row.vuln, cfg)...)
	}
	tw.Render()
}

// writeSuppressedSection renders the suppressed vulnerabilities header and table.
func writeSuppressedSection(w io.Writer, rows []vulnRow, cfg TableConfig) {
	title := fmt.Sprintf("Suppressed Vulnerabilities (Total: %d)", len(rows))
	if cfg.IsTerminal {
		_ = tml.Fprintf(w, "\n<underline>%s</underline>\n\n", title)
	} else {
		fmt.Fprintf(w, "\n%s\n", title)
		fmt.Fprintf(w, "%s\n", strings.Repeat("=", utf8.RuneCountInString(title)))
	}

	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders(priorityHeaders([]string{"Matched CPE", "Vulnerability", "Severity", "CVSS"}, cfg)...)
	for _, row := range rows {
		v := row.vuln
		tw.AddRow(priorityCells([]string{v.MatchedCPE, v.Name, severityCell(v, cfg.IsTerminal), formatCVSS(v)}, v, cfg)...)
	}
	tw.Render()
}

// headerNames returns column header names based on config.
func headerNames(cfg TableConfig) []string {
	return priorityHeaders([]string{"Matched CPE", "Vulnerability", "Severity", "CVSS", "Description"}, cfg)
}

func priorityHeaders(cols []string, cfg TableConfig) []string {
	if cfg.ShowRisk {
		cols = append(cols, "Risk")
	}
	if cfg.ShowEPSS {
		cols = append(cols, "EPSS", "EPSS %ile")
	}
	if cfg.ShowKEV {
		cols = append(cols, "KEV")
	}
	return cols
}

// rowCells returns the cell values for a single vulnerability row.
func rowCells(v *dependency.Vulnerability, cfg TableConfig) []string {
	matched := v.MatchedCPE
	if v.MatchedAllPreviousVersions {
		matched += " and previous"
	}
	cols := []string{
		matched,
		v.Name,
		severityCell(v, cfg.IsTerminal),
		formatCVSS(v),
		descriptionWithURL(v, cfg.IsTerminal),
	}
	return priorityCells(cols, v, cfg)
}

func priorityCells(cols []string, v *dependency.Vulnerability, cfg TableConfig) []string {
	if cfg.ShowRisk {
		cols = append(cols, formatRisk(v))
	}
	if cfg.ShowEPSS {
		cols = append(cols, formatEPSSScore(v), formatEPSSPercentile(v))
	}
	if cfg.ShowKEV {
		cols = append(cols, formatKEV(v))
	}
	return cols
}

// severityOf returns the recorded severity, or the band of the CVSS score.
func severityOf(v *dependency.Vulnerability) string {
	if v.Severity != "" {
		return strings.ToUpper(v.Severity)
	}
	return dependency.SeverityFromScore(v.CVSS.Score)
}

func severityCell(v *dependency.Vulnerability, isTerminal bool) string {
	severity := severityOf(v)
	if isTerminal {
		return colorizeSeverity(severity)
	}
	return severity
}

// severitySummary returns a line like:
// Total: 5 (UNKNOWN: 0, LOW: 2, MEDIUM: 1, HIGH: 1, CRITICAL: 1)
func severitySummary(vulns []dependency.Vulnerability) string {
	counts := map[string]int{
		"UNKNOWN":  0,
		"LOW":      0,
		"MEDIUM":   0,
		"HIGH":     0,
		"CRITICAL": 0,
	}
	for i := range vulns {
		sev := severityOf(&vulns[i])
		if _, ok := counts[sev]; ok {
			counts[sev]++
		} else {
			counts["UNKNOWN"]++
		}
	}
	return fmt.Sprintf("Total: %d (UNKNOWN: %d, LOW: %d, MEDIUM: %d, HIGH: %d, CRITICAL: %d)",
		len(vulns), counts["UNKNOWN"], counts["LOW"], counts["MEDIUM"], counts["HIGH"], counts["CRITICAL"])
}

var severityColors = map[string]func(a ...any) string{
	"UNKNOWN":  color.New(color.FgCyan).SprintFunc(),
	"LOW":      color.New(color.FgBlue).SprintFunc(),
	"MEDIUM":   color.New(color.FgYellow).SprintFunc(),
	"HIGH":     color.New(color.FgHiRed).SprintFunc(),
	"CRITICAL": color.New(color.FgRed).SprintFunc(),
}

// colorizeSeverity returns the severity string wrapped in ANSI color codes.
func colorizeSeverity(severity string) string {
	if fn, ok := severityColors[strings.ToUpper(severity)]; ok {
		return fn(severity)
	}
	return severity
}

// severityRank returns a numeric rank for sorting (higher = more severe).
func severityRank(severity string) int {
	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return 5
	case "HIGH":
		return 4
	case "MEDIUM":
		return 3
	case "LOW":
		return 2
	case "NEGLIGIBLE":
		return 1
	default:
		return 0
	}
}

// sortRows sorts the vulnerability rows based on the given sort key.
func sortRows(rows []vulnRow, sortBy string) {
	switch sortBy {
	case "risk":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].vuln.Priority.RiskScore() > rows[j].vuln.Priority.RiskScore()
		})
	case "epss":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].vuln.Priority.EPSSScore() > rows[j].vuln.Priority.EPSSScore()
		})
	case "severity":
		sort.SliceStable(rows, func(i, j int) bool {
			ri, rj := severityRank(severityOf(rows[i].vuln)), severityRank(severityOf(rows[j].vuln))
			if ri != rj {
				return ri > rj
			}
			return rows[i].vuln.CVSS.Score > rows[j].vuln.CVSS.Score
		})
	case "cvss":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].vuln.CVSS.Score > rows[j].vuln.CVSS.Score
		})
	case "cve":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].vuln.Name < rows[j].vuln.Name
		})
	default:
		// preserve original order
	}
}

// descriptionWithURL truncates the description to maxDescriptionWords
// words and appends the NVD detail page on a new line. When isTerminal is
// true, the URL is colored blue.
func descriptionWithURL(v *dependency.Vulnerability, isTerminal bool) string {
	description := truncateWords(v.Description, maxDescriptionWords)
	url := DetailURL(v.Name)
	if isTerminal {
		url = tml.Sprintf("<blue>%s</blue>", url)
	}
	if description != "" {
		return description + "\n" + url
	}
	return url
}

// DetailURL returns the NVD page of a CVE.
func DetailURL(cve string) string {
	return nvdDetailURL + cve
}

// truncateWords limits text to maxWords words, appending "..." if truncated.
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func formatCVSS(v *dependency.Vulnerability) string {
	if v.CVSS.Score == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", v.CVSS.Score)
}

// formatRisk formats the risk score or returns "-" if nil.
func formatRisk(v *dependency.Vulnerability) string {
	if v.Priority != nil && v.Priority.Risk != nil {
		return fmt.Sprintf("%.1f", *v.Priority.Risk)
	}
	return "-"
}

// formatEPSSScore formats the EPSS score or returns "-" if nil.
func formatEPSSScore(v *dependency.Vulnerability) string {
	if v.Priority != nil && v.Priority.EPSS != nil && v.Priority.EPSS.Score != nil {
		return fmt.Sprintf("%.2f", *v.Priority.EPSS.Score)
	}
	return "-"
}

// formatEPSSPercentile formats the EPSS percentile (0-1 scaled to 0-100) or returns "-" if nil.
func formatEPSSPercentile(v *dependency.Vulnerability) string {
	if v.Priority != nil && v.Priority.EPSS != nil && v.Priority.EPSS.Percentile != nil {
		return fmt.Sprintf("%.1f", *v.Priority.EPSS.Percentile*100)
	}
	return "-"
}

// formatKEV returns "YES" if the vulnerability is in the KEV catalog, "NO" otherwise.
func formatKEV(v *dependency.Vulnerability) string {
	if v.Priority.Exploited() {
		return "YES"
	}
	return "NO"
}
