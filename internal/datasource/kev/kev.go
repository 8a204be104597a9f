// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package kev loads the CISA Known Exploited Vulnerabilities catalog.
package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/bonial-oss/vulnmatch/internal/cache"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

const (
	cacheFilename = "known_exploited_vulnerabilities.json"
	PrimaryURL    = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	FallbackURL   = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"
)

// Fetcher downloads a file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source provides access to CISA KEV data with caching support.
type Source struct {
	fetcher     Fetcher
	primaryURL  string
	fallbackURL string
	cache       *cache.Cache
	logger      hclog.Logger
	entries     map[string]types.KEVEntry
}

// NewSource creates a new KEV data source with cache stored under cacheDir/kev/.
func NewSource(f Fetcher, cacheDir string, logger hclog.Logger) *Source {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Source{
		fetcher:     f,
		primaryURL:  PrimaryURL,
		fallbackURL: FallbackURL,
		cache:       cache.New(filepath.Join(cacheDir, "kev"), cache.DefaultTTL),
		logger:      logger,
		entries:     make(map[string]types.KEVEntry),
	}
}

// Load fetches KEV data, using cache when appropriate. See epss.Source.Load
// for the order of precedence.
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
			return fmt.Errorf("storing KEV data in cache: %w", storeErr)
		}
		return s.parseJSON(data)
	}

	if s.cache.Exists(cacheFilename) {
		s.logger.Warn("failed to download KEV data, using stale cache", "error", err)
		return s.loadFromCache()
	}

	return fmt.Errorf("downloading KEV data: %w", err)
}

// Lookup returns the KEV entry for the given CVE ID, or nil if not found.
func (s *Source) Lookup(cveID string) *types.KEVEntry {
	entry, ok := s.entries[cveID]
	if !ok {
		return nil
	}
	return &entry
}

func (s *Source) loadFromCache() error {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return fmt.Errorf("loading KEV data from cache: %w", err)
	}
	return s.parseJSON(data)
}

// download fetches the catalog from CISA, then from the GitHub mirror.
func (s *Source) download(ctx context.Context) ([]byte, error) {
	data, err := s.fetcher.Fetch(ctx, s.primaryURL)
	if err == nil {
		return data, nil
	}
	s.logger.Debug("KEV primary download failed, trying mirror", "error", err)

	data, err2 := s.fetcher.Fetch(ctx, s.fallbackURL)
	if err2 == nil {
		return data, nil
	}

	return nil, fmt.Errorf("primary: %w; fallback: %v", err, err2)
}

func (s *Source) parseJSON(data []byte) error {
	s.entries = make(map[string]types.KEVEntry)

	var catalog types.KEVCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}
	for _, vuln := range catalog.Vulnerabilities {
		s.entries[vuln.CVEID] = vuln
	}
	s.logger.Debug("KEV catalog loaded", "version", catalog.CatalogVersion, "entries", len(s.entries))
	return nil
}
