// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "db", "vulnmatch.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func software(name string, prev bool) dependency.VulnerableSoftware {
	c, err := nvd.ParseCPE(name)
	if err != nil {
		panic(err)
	}
	return dependency.VulnerableSoftware{
		Name: c.URI(), Vendor: c.Vendor, Product: c.Product, Version: c.Version, Update: c.Update,
		PreviousVersions: prev,
	}
}

func sampleFeed() *nvd.Feed {
	return &nvd.Feed{
		Vulnerabilities: []dependency.Vulnerability{
			{
				Name:        "CVE-2014-0160",
				Description: "Heartbleed",
				CWE:         "CWE-119",
				Severity:    "MEDIUM",
				CVSS:        dependency.CVSS{Score: 5.0, AccessVector: "NETWORK"},
				References: []dependency.Reference{
					{Source: "CERT", Name: "TA14-098A", URL: "http://www.us-cert.gov/ncas/alerts/TA14-098A"},
				},
				VulnerableSoftware: []dependency.VulnerableSoftware{
					software("cpe:/a:openssl:openssl:1.0.1c", false),
					software("cpe:/a:openssl:openssl:1.0.1", false),
				},
			},
			{
				Name:     "CVE-2012-0391",
				Severity: "HIGH",
				CVSS:     dependency.CVSS{Score: 9.3},
				VulnerableSoftware: []dependency.VulnerableSoftware{
					software("cpe:/a:apache:struts:2.2.3", true),
				},
			},
		},
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestIngest_Lookups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Ingest(ctx, sampleFeed(), map[string]string{"2014": "1396958400000"}))

	cpes, err := s.CPEs(ctx, "openssl", "openssl")
	require.NoError(t, err)
	require.Len(t, cpes, 2)
	assert.Equal(t, "1.0.1", cpes[0].Version)
	assert.Equal(t, "1.0.1c", cpes[1].Version)

	vulns, err := s.Vulnerabilities(ctx, "apache", "struts")
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "CVE-2012-0391", vulns[0].Name)
	require.Len(t, vulns[0].VulnerableSoftware, 1)
	assert.True(t, vulns[0].VulnerableSoftware[0].PreviousVersions)

	vulns, err = s.Vulnerabilities(ctx, "openssl", "openssl")
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "CWE-119", vulns[0].CWE)
	assert.Equal(t, "NETWORK", vulns[0].CVSS.AccessVector)
	assert.Len(t, vulns[0].VulnerableSoftware, 2)
	require.Len(t, vulns[0].References, 1)
	assert.Equal(t, "TA14-098A", vulns[0].References[0].Name)

	props, err := s.Properties(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1396958400000", props["2014"])
}

func TestIngest_ReplacesModifiedEntries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Ingest(ctx, sampleFeed(), nil))

	modified := &nvd.Feed{Vulnerabilities: []dependency.Vulnerability{{
		Name:        "CVE-2014-0160",
		Description: "Heartbleed, revised",
		VulnerableSoftware: []dependency.VulnerableSoftware{
			software("cpe:/a:openssl:openssl:1.0.1f", false),
		},
	}}}
	require.NoError(t, s.Ingest(ctx, modified, map[string]string{"modified": "2"}))

	vulns, err := s.Vulnerabilities(ctx, "openssl", "openssl")
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "Heartbleed, revised", vulns[0].Description)
	require.Len(t, vulns[0].VulnerableSoftware, 1)
	assert.Equal(t, "cpe:/a:openssl:openssl:1.0.1f", vulns[0].VulnerableSoftware[0].Name)
	assert.Empty(t, vulns[0].References)

	// Entries no vulnerability references any more are removed by cleanup.
	require.NoError(t, s.Cleanup(ctx))
	cpes, err := s.CPEs(ctx, "openssl", "openssl")
	require.NoError(t, err)
	require.Len(t, cpes, 1)
	assert.Equal(t, "1.0.1f", cpes[0].Version)
}

func TestIngest_Dictionary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dict := &nvd.Feed{Products: []nvd.CPE{
		{Part: "a", Vendor: "springsource", Product: "spring_framework", Version: "3.0.5", Title: "Spring Framework 3.0.5"},
		{Part: "o", Vendor: "linux", Product: "linux_kernel", Version: "2.6.32"},
	}}
	require.NoError(t, s.Ingest(ctx, dict, nil))
	require.NoError(t, s.Cleanup(ctx))

	cpes, err := s.CPEs(ctx, "springsource", "spring_framework")
	require.NoError(t, err)
	require.Len(t, cpes, 1, "dictionary entries survive cleanup")
	assert.Equal(t, "Spring Framework 3.0.5", cpes[0].Title)

	n, err := s.IndexSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only applications are indexed")
}

func TestIndexCandidates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	feed := sampleFeed()
	feed.Products = []nvd.CPE{{Part: "a", Vendor: "springsource", Product: "spring_framework"}}
	require.NoError(t, s.Ingest(ctx, feed, nil))

	docs, err := s.IndexCandidates(ctx, map[string][]string{
		FieldVendor:  {"apache", "software", "foundation"},
		FieldProduct: {"struts", "2", "core"},
	}, 25)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "apache", docs[0].Vendor)
	assert.Equal(t, "struts", docs[0].Product)
	assert.Equal(t, []string{"struts"}, docs[0].Terms[FieldProduct])

	docs, err = s.IndexCandidates(ctx, map[string][]string{
		FieldVendor:  {"springsource"},
		FieldProduct: {"springframework"},
	}, 25)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.ElementsMatch(t, []string{"spring", "framework", "springframework"}, docs[0].Terms[FieldProduct])

	docs, err = s.IndexCandidates(ctx, map[string][]string{
		FieldVendor:  {"apache"},
		FieldProduct: {"openssl"},
	}, 25)
	require.NoError(t, err)
	assert.Empty(t, docs, "every field must match")

	docs, err = s.IndexCandidates(ctx, map[string][]string{FieldVendor: {}}, 25)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentFrequencies(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Ingest(ctx, sampleFeed(), nil))

	df, err := s.DocumentFrequencies(ctx, FieldProduct, []string{"openssl", "struts", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"openssl": 1, "struts": 1}, df)

	df, err = s.DocumentFrequencies(ctx, FieldProduct, nil)
	require.NoError(t, err)
	assert.Empty(t, df)
}

func TestRebuildIndex(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Ingest(ctx, sampleFeed(), nil))

	_, err := s.db.ExecContext(ctx, `DELETE FROM cpe_index`)
	require.NoError(t, err)
	require.NoError(t, s.Cleanup(ctx), "cleanup rebuilds an empty index")

	n, err := s.IndexSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.RebuildIndex(ctx))
	n, err = s.IndexSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProperties(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	props, err := s.Properties(ctx)
	require.NoError(t, err)
	assert.Empty(t, props)

	require.NoError(t, s.SetProperty(ctx, "modified", "1"))
	require.NoError(t, s.SetProperty(ctx, "modified", "2"))
	props, err = s.Properties(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"modified": "2"}, props)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Properties(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.IndexSize(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ingest(ctx, &nvd.Feed{}, nil), ErrClosed)
}

func TestIndexTerms(t *testing.T) {
	assert.Equal(t, []string{"spring", "springframework", "framework"}, IndexTerms("spring_framework"))
	assert.Equal(t, []string{"struts"}, IndexTerms("Struts"))
	assert.Equal(t, []string{"apache", "apachesoftware", "software", "softwarefoundation", "foundation"},
		IndexTerms("apache software foundation"))
	assert.Empty(t, IndexTerms("--"))
}

func TestDialect_Rebind(t *testing.T) {
	pg := dialects[DriverPostgres]
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2, $3)", pg.q("SELECT 1 WHERE a = ? AND b IN ("+placeholders(2)+")"))
	lite := dialects[DriverSQLite]
	assert.Equal(t, "a = ?", lite.q("a = ?"))
	assert.Equal(t, "", placeholders(0))
}
