// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package metrics collects update and identification counters in a private
// Prometheus registry that can be written to a node exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vulnmatch"

// Download statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	SegmentDownloads       *prometheus.CounterVec
	SegmentsIngested       prometheus.Counter
	UpdateDuration         prometheus.Histogram
	Identifications        *prometheus.CounterVec
	MatchedVulnerabilities prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.SegmentDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_downloads_total",
			Help:      "Feed segment downloads by status.",
		},
		[]string{"status"},
	)
	m.SegmentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_ingested_total",
			Help:      "Feed segments written to the store.",
		},
	)
	m.UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of update runs that downloaded data.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)
	m.Identifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifications_total",
			Help:      "CPE identification attempts by resulting state.",
		},
		[]string{"result"},
	)
	m.MatchedVulnerabilities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_vulnerabilities_total",
			Help:      "Vulnerabilities attached to dependencies.",
		},
	)

	m.Registry.MustRegister(
		m.SegmentDownloads,
		m.SegmentsIngested,
		m.UpdateDuration,
		m.Identifications,
		m.MatchedVulnerabilities,
	)
	return m
}

func (m *Metrics) SegmentDownloaded(ok bool) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	m.SegmentDownloads.WithLabelValues(status).Inc()
}

func (m *Metrics) SegmentIngested() {
	if m == nil {
		return
	}
	m.SegmentsIngested.Inc()
}

func (m *Metrics) ObserveUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.UpdateDuration.Observe(d.Seconds())
}

// Identified counts one identification attempt ending in result and the
// vulnerabilities it attached.
func (m *Metrics) Identified(result string, vulnerabilities int) {
	if m == nil {
		return
	}
	m.Identifications.WithLabelValues(result).Inc()
	m.MatchedVulnerabilities.Add(float64(vulnerabilities))
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
