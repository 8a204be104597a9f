// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is the freshness window used when New is given a zero TTL.
const DefaultTTL = 24 * time.Hour

const metadataFile = "metadata.json"

type Metadata struct {
	CheckedAt string `json:"checked_at"`
}

// Cache keeps files in a directory together with the time they were last
// refreshed.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func New(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// IsFresh reports whether the cache was stored or touched within its TTL.
func (c *Cache) IsFresh() bool {
	checked, ok := c.CheckedAt()
	if !ok {
		return false
	}
	return c.now().Sub(checked) < c.ttl
}

// CheckedAt returns the time of the last Store or Touch.
func (c *Cache) CheckedAt() (time.Time, bool) {
	meta, err := c.loadMetadata()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, meta.CheckedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *Cache) Store(filename string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("writing cache data: %w", err)
	}
	return c.Touch()
}

// Touch marks the cache as refreshed now without writing data.
func (c *Cache) Touch() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	metaBytes, err := json.Marshal(Metadata{CheckedAt: c.now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, metadataFile), metaBytes, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// Invalidate forgets the refresh time so the next IsFresh reports false.
func (c *Cache) Invalidate() error {
	err := os.Remove(filepath.Join(c.dir, metadataFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	return nil
}

func (c *Cache) Load(filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(c.dir, filename))
}

func (c *Cache) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(c.dir, filename))
	return err == nil
}

func (c *Cache) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
