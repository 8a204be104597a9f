// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package store persists the mirrored vulnerability data, the known CPE
// entries, the CPE search index and the update timestamps in one SQL
// database. SQLite is the embedded default; PostgreSQL is supported for
// shared installations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store is closed")

type dialect struct {
	name   string
	driver string
	autoID string
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: DriverSQLite, driver: "sqlite", autoID: "INTEGER PRIMARY KEY AUTOINCREMENT"},
	DriverPostgres: {name: DriverPostgres, driver: "pgx", autoID: "BIGSERIAL PRIMARY KEY"},
}

// q rewrites ? placeholders into the dialect's bind syntax.
func (d dialect) q(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// Store is safe for concurrent use: any number of readers, one writer.
// A segment ingestion holds the write lock for its whole transaction.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  hclog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open connects to the database and applies the schema. For SQLite the dsn
// is a file path whose parent directory is created when missing.
func Open(ctx context.Context, driver, dsn string, logger hclog.Logger) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if d.name == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, dialect: d, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Close releases the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.dialect.name
}

func (s *Store) rlock() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Properties returns every persisted property, including the per segment
// update timestamps.
func (s *Store) Properties(ctx context.Context) (map[string]string, error) {
	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, value FROM properties`)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		props[key] = value
	}
	return props, rows.Err()
}

// SetProperty persists a single property.
func (s *Store) SetProperty(ctx context.Context, key, value string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, s.dialect.q(upsertProperty), key, value); err != nil {
		return fmt.Errorf("saving property %s: %w", key, err)
	}
	return nil
}

const upsertProperty = `INSERT INTO properties (id, value) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET value = excluded.value`

// Cleanup removes CPE entries no vulnerability references any more,
// drops index entries without CPEs, rebuilds an empty index and refreshes
// the planner statistics.
func (s *Store) Cleanup(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cleanup: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM cpe_entry WHERE dictionary = 0 AND id NOT IN (SELECT cpe_entry_id FROM software)`,
		`DELETE FROM cpe_index WHERE NOT EXISTS (
			SELECT 1 FROM cpe_entry c WHERE c.part = 'a' AND c.vendor = cpe_index.vendor AND c.product = cpe_index.product)`,
		`DELETE FROM cpe_index_term WHERE entry_id NOT IN (SELECT id FROM cpe_index)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cleaning up store: %w", err)
		}
	}

	var indexed, known int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cpe_index`).Scan(&indexed); err != nil {
		return fmt.Errorf("counting index entries: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cpe_entry WHERE part = 'a'`).Scan(&known); err != nil {
		return fmt.Errorf("counting CPE entries: %w", err)
	}
	if indexed == 0 && known > 0 {
		s.logger.Info("rebuilding CPE index", "entries", known)
		if err := rebuildIndex(ctx, tx, s.dialect); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cleanup: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		s.logger.Warn("analyze failed", "error", err)
	}
	return nil
}
