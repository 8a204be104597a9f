// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package kev

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vulnmatch/internal/config"
	"github.com/bonial-oss/vulnmatch/internal/download"
)

const sampleJSON = `{
  "catalogVersion": "2026.02.12",
  "dateReleased": "2026-02-12T00:00:00.000Z",
  "count": 2,
  "vulnerabilities": [
    {
      "cveID": "CVE-2024-1234",
      "vendorProject": "ExampleVendor",
      "product": "ExampleProduct",
      "vulnerabilityName": "Example Vulnerability",
      "dateAdded": "2024-01-15",
      "shortDescription": "An example vulnerability.",
      "requiredAction": "Apply updates per vendor instructions.",
      "dueDate": "2024-02-05",
      "knownRansomwareCampaignUse": "Known",
      "notes": "",
      "cwes": ["CWE-78"]
    },
    {
      "cveID": "CVE-2023-5678",
      "vendorProject": "AnotherVendor",
      "product": "AnotherProduct",
      "vulnerabilityName": "Another Vulnerability",
      "dateAdded": "2023-06-01",
      "shortDescription": "Another example.",
      "requiredAction": "Apply updates per vendor instructions.",
      "dueDate": "2023-06-22",
      "knownRansomwareCampaignUse": "Unknown",
      "notes": "",
      "cwes": ["CWE-79"]
    }
  ]
}`

func TestParseJSON(t *testing.T) {
	s := NewSource(nil, t.TempDir(), nil)
	require.NoError(t, s.parseJSON([]byte(sampleJSON)))
	require.Len(t, s.entries, 2)

	tests := []struct {
		cveID                      string
		vendorProject              string
		product                    string
		dateAdded                  string
		dueDate                    string
		knownRansomwareCampaignUse string
	}{
		{
			cveID:                      "CVE-2024-1234",
			vendorProject:              "ExampleVendor",
			product:                    "ExampleProduct",
			dateAdded:                  "2024-01-15",
			dueDate:                    "2024-02-05",
			knownRansomwareCampaignUse: "Known",
		},
		{
			cveID:                      "CVE-2023-5678",
			vendorProject:              "AnotherVendor",
			product:                    "AnotherProduct",
			dateAdded:                  "2023-06-01",
			dueDate:                    "2023-06-22",
			knownRansomwareCampaignUse: "Unknown",
		},
	}

	for _, tc := range tests {
		entry, ok := s.entries[tc.cveID]
		require.True(t, ok, "entry for %s not found", tc.cveID)
		assert.Equal(t, tc.cveID, entry.CVEID)
		assert.Equal(t, tc.vendorProject, entry.VendorProject)
		assert.Equal(t, tc.product, entry.Product)
		assert.Equal(t, tc.dateAdded, entry.DateAdded)
		assert.Equal(t, tc.dueDate, entry.DueDate)
		assert.Equal(t, tc.knownRansomwareCampaignUse, entry.KnownRansomwareCampaignUse)
	}
}

func TestLookup(t *testing.T) {
	s := NewSource(nil, t.TempDir(), nil)
	require.NoError(t, s.parseJSON([]byte(sampleJSON)))

	entry := s.Lookup("CVE-2024-1234")
	require.NotNil(t, entry)
	assert.Equal(t, "Known", entry.KnownRansomwareCampaignUse)

	assert.Nil(t, s.Lookup("CVE-9999-0000"))
}

func TestParseJSON_Invalid(t *testing.T) {
	s := NewSource(nil, t.TempDir(), nil)
	assert.ErrorContains(t, s.parseJSON([]byte("<html>")), "unmarshaling KEV catalog")
}

func TestSource_Load_FromCache(t *testing.T) {
	tmpDir := t.TempDir()
	kevDir := filepath.Join(tmpDir, "kev")
	require.NoError(t, os.MkdirAll(kevDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kevDir, cacheFilename), []byte(sampleJSON), 0o644))

	s := NewSource(nil, tmpDir, nil)
	require.NoError(t, s.Load(context.Background(), true))
	require.Len(t, s.entries, 2)
}

func newTestSource(t *testing.T, srv *httptest.Server, dir string) *Source {
	t.Helper()
	f, err := download.NewFetcher(resty.New(), config.S3Config{}, nil)
	require.NoError(t, err)
	s := NewSource(f, dir, nil)
	s.primaryURL = srv.URL + "/cisa/known_exploited_vulnerabilities.json"
	s.fallbackURL = srv.URL + "/mirror/known_exploited_vulnerabilities.json"
	return s
}

func TestSource_Load_Download(t *testing.T) {
	tests := []struct {
		name   string
		served string
	}{
		{"primary", "/cisa/known_exploited_vulnerabilities.json"},
		{"fallback", "/mirror/known_exploited_vulnerabilities.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.served {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte(sampleJSON))
			}))
			defer srv.Close()

			dir := t.TempDir()
			s := newTestSource(t, srv, dir)
			require.NoError(t, s.Load(context.Background(), false))
			assert.Len(t, s.entries, 2)
			assert.FileExists(t, filepath.Join(dir, "kev", cacheFilename))
		})
	}
}

func TestSource_Load_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestSource(t, srv, t.TempDir()).Load(context.Background(), false)
	assert.ErrorContains(t, err, "downloading KEV data")
	assert.ErrorContains(t, err, "HTTP 503")

	// A stale cache is better than nothing.
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "kev"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kev", cacheFilename), []byte(sampleJSON), 0o644))
	s := newTestSource(t, srv, dir)
	require.NoError(t, s.Load(context.Background(), false))
	assert.Len(t, s.entries, 2)
}
