// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package epss loads the daily EPSS scores used to prioritize matched
// vulnerabilities.
package epss

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bonial-oss/vulnmatch/internal/cache"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

const (
	cacheFilename = "epss_scores.csv"
	// DefaultBaseURL serves epss_scores-YYYY-MM-DD.csv.gz files.
	DefaultBaseURL = "https://epss.empiricalsecurity.com"
)

// Fetcher downloads a file, decompressing .gz files.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source provides access to EPSS data with caching support.
type Source struct {
	fetcher      Fetcher
	baseURL      string
	cache        *cache.Cache
	logger       hclog.Logger
	now          func() time.Time
	entries      map[string]types.EPSSEntry
	modelVersion string
	scoreDate    string
}

// NewSource creates a new EPSS data source with cache stored under cacheDir/epss/.
func NewSource(f Fetcher, cacheDir string, logger hclog.Logger) *Source {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Source{
		fetcher: f,
		baseURL: DefaultBaseURL,
		cache:   cache.New(filepath.Join(cacheDir, "epss"), cache.DefaultTTL),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]types.EPSSEntry),
	}
}

// Load fetches EPSS data, using cache when appropriate.
//
// Logic:
//  1. If skipUpdate and cache exists -> load from cache.
//  2. If cache is fresh -> load from cache.
//  3. Download fresh data and store it in the cache.
//  4. If the download fails and a cache exists -> warn, load the stale cache.
//  5. Otherwise return the download error.
func (s *Source) Load(ctx context.Context, skipUpdate bool) error {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		return s.loadFromCache()
	}

	data, err := s.download(ctx)
	if err == nil {
		if storeErr := s.cache.Store(cacheFilename, data); storeErr != nil {
			return fmt.Errorf("storing EPSS data in cache: %w", storeErr)
		}
		return s.parseCSV(data)
	}

	if s.cache.Exists(cacheFilename) {
		s.logger.Warn("failed to download EPSS data, using stale cache", "error", err)
		return s.loadFromCache()
	}

	return fmt.Errorf("downloading EPSS data: %w", err)
}

// Lookup returns the EPSS entry for the given CVE ID, or nil if not found.
func (s *Source) Lookup(cveID string) *types.EPSSEntry {
	entry, ok := s.entries[cveID]
	if !ok {
		return nil
	}
	return &entry
}

// ModelVersion returns the model version string from the EPSS CSV header.
func (s *Source) ModelVersion() string {
	return s.modelVersion
}

// ScoreDate returns the score date string from the EPSS CSV header.
func (s *Source) ScoreDate() string {
	return s.scoreDate
}

func (s *Source) loadFromCache() error {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return fmt.Errorf("loading EPSS data from cache: %w", err)
	}
	return s.parseCSV(data)
}

// download fetches the EPSS CSV for today's date, falling back to
// yesterday's when today's file is not published yet.
func (s *Source) download(ctx context.Context) ([]byte, error) {
	now := s.now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	data, err := s.fetcher.Fetch(ctx, s.urlFor(today))
	if err == nil {
		return data, nil
	}
	s.logger.Debug("EPSS scores for today not available", "date", today, "error", err)

	data, err2 := s.fetcher.Fetch(ctx, s.urlFor(yesterday))
	if err2 == nil {
		return data, nil
	}

	return nil, fmt.Errorf("today (%s): %w; yesterday (%s): %v", today, err, yesterday, err2)
}

func (s *Source) urlFor(date string) string {
	return fmt.Sprintf("%s/epss_scores-%s.csv.gz", strings.TrimSuffix(s.baseURL, "/"), date)
}

// parseCSV parses the EPSS CSV data and populates the entries map.
// It extracts model_version and score_date from the comment header line.
func (s *Source) parseCSV(data []byte) error {
	s.entries = make(map[string]types.EPSSEntry)
	s.modelVersion = ""
	s.scoreDate = ""

	lines := strings.Split(string(data), "\n")

	dataStart := 0
	for i, line := range lines {
		if !strings.HasPrefix(line, "#") {
			dataStart = i
			break
		}
		s.parseCommentLine(line)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[dataStart:], "\n")))

	// Header.
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("reading CSV header: %w", err)
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading CSV record: %w", err)
		}
		if len(record) < 3 {
			continue
		}

		score, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return fmt.Errorf("parsing EPSS score for %s: %w", record[0], err)
		}
		percentile, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return fmt.Errorf("parsing EPSS percentile for %s: %w", record[0], err)
		}

		s.entries[record[0]] = types.EPSSEntry{
			CVE:        record[0],
			Score:      score,
			Percentile: percentile,
		}
	}
	s.logger.Debug("EPSS scores loaded", "entries", len(s.entries), "model", s.modelVersion)
	return nil
}

// parseCommentLine extracts metadata from a comment line like:
// #model_version:v2025.03.14,score_date:2026-02-12T00:00:00+0000
func (s *Source) parseCommentLine(line string) {
	for _, part := range strings.Split(strings.TrimPrefix(line, "#"), ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "model_version":
			s.modelVersion = strings.TrimSpace(value)
		case "score_date":
			s.scoreDate = strings.TrimSpace(value)
		}
	}
}
