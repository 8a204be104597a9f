// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()
	assert.NotNil(t, m.Registry)
	assert.NotNil(t, m.SegmentDownloads)
	assert.NotNil(t, m.SegmentsIngested)
	assert.NotNil(t, m.UpdateDuration)
	assert.NotNil(t, m.Identifications)
	assert.NotNil(t, m.MatchedVulnerabilities)

	// Each instance owns its registry.
	assert.NotSame(t, m.Registry, New().Registry)
}

func TestRecording(t *testing.T) {
	m := New()

	m.SegmentDownloaded(true)
	m.SegmentDownloaded(true)
	m.SegmentDownloaded(false)
	m.SegmentIngested()
	m.ObserveUpdate(3 * time.Second)
	m.Identified("identified", 2)
	m.Identified("no_match", 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.SegmentDownloads.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SegmentDownloads.WithLabelValues(StatusFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SegmentsIngested), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Identifications.WithLabelValues("identified")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Identifications.WithLabelValues("no_match")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.MatchedVulnerabilities), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.UpdateDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SegmentDownloaded(true)
		m.SegmentIngested()
		m.ObserveUpdate(time.Second)
		m.Identified("identified", 1)
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.SegmentIngested()
	m.Identified("identified", 3)

	path := filepath.Join(t.TempDir(), "textfile", "vulnmatch.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vulnmatch_segments_ingested_total 1")
	assert.Contains(t, string(data), `vulnmatch_identifications_total{result="identified"} 1`)
	assert.Contains(t, string(data), "vulnmatch_matched_vulnerabilities_total 3")

	assert.NoError(t, m.WriteTextfile(""), "an empty path disables the textfile")
}
