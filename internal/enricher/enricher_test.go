// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package enricher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vulnmatch/internal/datasource/epss"
	"github.com/bonial-oss/vulnmatch/internal/datasource/kev"
	"github.com/bonial-oss/vulnmatch/internal/dependency"
)

// Sample EPSS CSV with 3 entries:
//   - CVE-2024-1234: 0.97 (in both EPSS and KEV fixtures)
//   - CVE-2023-5678: 0.42 (in EPSS only)
//   - CVE-2023-9012: 0.01
const testEPSSCSV = `#model_version:v2025.03.14,score_date:2026-02-12T00:00:00+0000
cve,epss,percentile
CVE-2024-1234,0.97000,0.99800
CVE-2023-5678,0.42000,0.87300
CVE-2023-9012,0.01000,0.12100
`

const testKEVJSON = `{
  "catalogVersion": "2026.02.12",
  "count": 1,
  "vulnerabilities": [
    {
      "cveID": "CVE-2024-1234",
      "vendorProject": "ExampleVendor",
      "product": "ExampleProduct",
      "dateAdded": "2024-01-15",
      "dueDate": "2024-02-05",
      "knownRansomwareCampaignUse": "Known"
    }
  ]
}`

// setupEPSSSource creates an EPSS source loaded from cache with test data.
func setupEPSSSource(t *testing.T) *epss.Source {
	t.Helper()
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "epss"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "epss", "epss_scores.csv"), []byte(testEPSSCSV), 0o644))

	s := epss.NewSource(nil, tmpDir, nil)
	require.NoError(t, s.Load(context.Background(), true))
	return s
}

// setupKEVSource creates a KEV source loaded from cache with test data.
func setupKEVSource(t *testing.T) *kev.Source {
	t.Helper()
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "kev"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "kev", "known_exploited_vulnerabilities.json"), []byte(testKEVJSON), 0o644))

	s := kev.NewSource(nil, tmpDir, nil)
	require.NoError(t, s.Load(context.Background(), true))
	return s
}

// testDependencies returns one dependency with 3 vulnerabilities:
//
//	CVE-2024-1234 (HIGH, 9.3)   - in both EPSS and KEV
//	CVE-2023-5678 (HIGH, 7.5)   - in EPSS only
//	CVE-2023-9999 (MEDIUM, 5.0) - in neither
func testDependencies() []*dependency.Dependency {
	dep := dependency.New("/app/lib/struts2-core-2.1.2.jar")
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-1234", Severity: "HIGH", CVSS: dependency.CVSS{Score: 9.3}})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2023-5678", Severity: "HIGH", CVSS: dependency.CVSS{Score: 7.5}})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2023-9999", Severity: "MEDIUM", CVSS: dependency.CVSS{Score: 5.0}})
	return []*dependency.Dependency{dep}
}

func byName(deps []*dependency.Dependency) map[string]dependency.Vulnerability {
	out := make(map[string]dependency.Vulnerability)
	for _, d := range deps {
		for _, v := range d.Vulnerabilities() {
			out[v.Name] = v
		}
	}
	return out
}

func TestEnrich_BothSources(t *testing.T) {
	e := New(setupEPSSSource(t), setupKEVSource(t))
	result := e.Enrich(testDependencies(), Config{})
	assert.False(t, result.PolicyViolation)

	vulns := byName(result.Dependencies)
	require.Len(t, vulns, 3)

	listed := vulns["CVE-2024-1234"].Priority
	require.NotNil(t, listed)
	require.NotNil(t, listed.EPSS)
	require.NotNil(t, listed.EPSS.Score)
	assert.InEpsilon(t, 0.97, *listed.EPSS.Score, 1e-9)
	assert.InEpsilon(t, 0.998, *listed.EPSS.Percentile, 1e-9)
	assert.Equal(t, "v2025.03.14", listed.EPSS.ModelVersion)
	assert.True(t, listed.Exploited())
	assert.Equal(t, "2024-01-15", listed.KEV.DateAdded)
	assert.Equal(t, "Known", listed.KEV.KnownRansomwareCampaignUse)
	// severity=(0.75+0.93)/2=0.84, kevMod=1.1 -> 92.4
	assert.InEpsilon(t, 92.4, listed.RiskScore(), 0.01)

	epssOnly := vulns["CVE-2023-5678"].Priority
	assert.False(t, epssOnly.Exploited())
	require.NotNil(t, epssOnly.KEV)
	// severity=(0.75+0.75)/2=0.75, threat=0.42 -> 31.5
	assert.InEpsilon(t, 31.5, epssOnly.RiskScore(), 0.01)

	unknown := vulns["CVE-2023-9999"].Priority
	require.NotNil(t, unknown.EPSS)
	assert.Nil(t, unknown.EPSS.Score)
	assert.Equal(t, "2026-02-12T00:00:00+0000", unknown.EPSS.ScoreDate)
	require.NotNil(t, unknown.Risk)
	assert.Zero(t, *unknown.Risk)
}

func TestEnrich_MatchCertainty(t *testing.T) {
	dep := dependency.New("/app/lib/struts2-core-2.1.2.jar")
	dep.AddIdentifier(dependency.Identifier{Type: dependency.IdentifierCPE, Value: "cpe:/a:apache:struts:2.1.2", Confidence: dependency.Low})
	dep.AddIdentifier(dependency.Identifier{Type: dependency.IdentifierCPE, Value: "cpe:/a:apache:struts2-core:2.1.2", Confidence: dependency.Medium})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2023-5678", Severity: "HIGH", CVSS: dependency.CVSS{Score: 7.5}})
	dep.AddVulnerability(dependency.Vulnerability{Name: "CVE-2024-1234", Severity: "HIGH", CVSS: dependency.CVSS{Score: 9.3},
		MatchedAllPreviousVersions: true})

	result := New(setupEPSSSource(t), setupKEVSource(t)).Enrich([]*dependency.Dependency{dep}, Config{})
	vulns := byName(result.Dependencies)

	// The highest identifier confidence (MEDIUM) applies: 31.5 * 0.9
	assert.InEpsilon(t, 28.35, vulns["CVE-2023-5678"].Priority.RiskScore(), 0.01)
	// 92.4 * 0.9 * 0.95
	assert.InEpsilon(t, 79.002, vulns["CVE-2024-1234"].Priority.RiskScore(), 0.01)
}

func TestEnrich_NoEPSS(t *testing.T) {
	result := New(nil, setupKEVSource(t)).Enrich(testDependencies(), Config{})
	for _, v := range byName(result.Dependencies) {
		require.NotNil(t, v.Priority)
		assert.Nil(t, v.Priority.EPSS)
		assert.NotNil(t, v.Priority.KEV)
		assert.Nil(t, v.Priority.Risk, "risk needs both sources")
	}
}

func TestEnrich_NoKEV(t *testing.T) {
	result := New(setupEPSSSource(t), nil).Enrich(testDependencies(), Config{})
	for _, v := range byName(result.Dependencies) {
		require.NotNil(t, v.Priority)
		assert.NotNil(t, v.Priority.EPSS)
		assert.Nil(t, v.Priority.KEV)
		assert.Nil(t, v.Priority.Risk)
	}
}

func TestEnrich_Filters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"none", Config{}, []string{"CVE-2023-5678", "CVE-2023-9999", "CVE-2024-1234"}},
		{"epss threshold", Config{EPSSThreshold: 0.4}, []string{"CVE-2023-5678", "CVE-2024-1234"}},
		{"kev only", Config{KEVOnly: true}, []string{"CVE-2024-1234"}},
		{"both", Config{EPSSThreshold: 0.99, KEVOnly: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDependencies()
			New(setupEPSSSource(t), setupKEVSource(t)).Enrich(deps, tt.cfg)

			var got []string
			for _, v := range deps[0].Vulnerabilities() {
				got = append(got, v.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnrich_Policies(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		violations int
	}{
		{"no policy", Config{}, 0},
		{"fail on kev", Config{FailOnKEV: true}, 1},
		{"fail on epss", Config{FailOnEPSSThreshold: 0.4}, 2},
		{"fail on epss above every score", Config{FailOnEPSSThreshold: 0.98}, 0},
		{"fail on cvss", Config{FailOnCVSS: 7.0}, 2},
		{"fail on cvss above every score", Config{FailOnCVSS: 9.5}, 0},
		{"combined", Config{FailOnKEV: true, FailOnCVSS: 9.0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := New(setupEPSSSource(t), setupKEVSource(t)).Enrich(testDependencies(), tt.cfg)
			assert.Equal(t, tt.violations > 0, result.PolicyViolation)
			assert.Len(t, result.Violations, tt.violations)
		})
	}
}

func TestEnrich_PolicyWithoutSources(t *testing.T) {
	result := New(nil, nil).Enrich(testDependencies(), Config{FailOnCVSS: 9.0, FailOnKEV: true})
	require.True(t, result.PolicyViolation)
	assert.Equal(t, []string{"CVE-2024-1234 in struts2-core-2.1.2.jar: CVSS 9.3 >= 9.0"}, result.Violations)
}

func TestEnrich_FilterBeforePolicy(t *testing.T) {
	// Filtered vulnerabilities no longer fail the check.
	result := New(setupEPSSSource(t), setupKEVSource(t)).Enrich(testDependencies(), Config{KEVOnly: true, FailOnCVSS: 7.0})
	assert.Len(t, result.Violations, 1)
}
