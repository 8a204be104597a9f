// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
)

const (
	upsertVulnerability = `INSERT INTO vulnerability (
	cve, description, cwe, severity, cvss_score, cvss_access_vector, cvss_access_complexity,
	cvss_authentication, cvss_confidentiality_impact, cvss_integrity_impact, cvss_availability_impact,
	published, modified
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cve) DO UPDATE SET
	description = excluded.description,
	cwe = excluded.cwe,
	severity = excluded.severity,
	cvss_score = excluded.cvss_score,
	cvss_access_vector = excluded.cvss_access_vector,
	cvss_access_complexity = excluded.cvss_access_complexity,
	cvss_authentication = excluded.cvss_authentication,
	cvss_confidentiality_impact = excluded.cvss_confidentiality_impact,
	cvss_integrity_impact = excluded.cvss_integrity_impact,
	cvss_availability_impact = excluded.cvss_availability_impact,
	published = excluded.published,
	modified = excluded.modified
RETURNING id`

	deleteReferences = `DELETE FROM vuln_reference WHERE cve_id = ?`
	deleteSoftware   = `DELETE FROM software WHERE cve_id = ?`
	insertReference  = `INSERT INTO vuln_reference (cve_id, source, name, url) VALUES (?, ?, ?, ?)`

	upsertCPE = `INSERT INTO cpe_entry (cpe, part, vendor, product, version, update_version, title, dictionary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cpe) DO UPDATE SET
	title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE cpe_entry.title END,
	dictionary = CASE WHEN excluded.dictionary > cpe_entry.dictionary THEN excluded.dictionary ELSE cpe_entry.dictionary END
RETURNING id`

	upsertSoftware = `INSERT INTO software (cve_id, cpe_entry_id, previous_version) VALUES (?, ?, ?)
ON CONFLICT (cve_id, cpe_entry_id) DO UPDATE SET previous_version = excluded.previous_version`

	insertIndexEntry = `INSERT INTO cpe_index (vendor, product) VALUES (?, ?)
ON CONFLICT (vendor, product) DO NOTHING
RETURNING id`

	insertIndexTerm = `INSERT INTO cpe_index_term (entry_id, field, term) VALUES (?, ?, ?)
ON CONFLICT DO NOTHING`
)

// Ingest writes one decoded feed segment and the given properties in a
// single transaction, so a segment's timestamp is only visible once its
// data is.
func (s *Store) Ingest(ctx context.Context, feed *nvd.Feed, properties map[string]string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting ingestion: %w", err)
	}
	defer tx.Rollback()

	w, err := newIngester(ctx, tx, s.dialect)
	if err != nil {
		return err
	}
	defer w.close()

	for i := range feed.Vulnerabilities {
		if err := w.vulnerability(&feed.Vulnerabilities[i]); err != nil {
			return fmt.Errorf("storing %s: %w", feed.Vulnerabilities[i].Name, err)
		}
	}
	for _, c := range feed.Products {
		if _, err := w.cpe(c, true); err != nil {
			return fmt.Errorf("storing %s: %w", c.URI(), err)
		}
	}
	for key, value := range properties {
		if _, err := w.stmts[upsertProperty].ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("saving property %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ingestion: %w", err)
	}
	s.logger.Debug("segment ingested", "vulnerabilities", len(feed.Vulnerabilities), "products", len(feed.Products))
	return nil
}

type ingester struct {
	ctx     context.Context
	stmts   map[string]*sql.Stmt
	indexed map[[2]string]bool
}

func newIngester(ctx context.Context, tx *sql.Tx, d dialect) (*ingester, error) {
	w := &ingester{ctx: ctx, stmts: make(map[string]*sql.Stmt), indexed: make(map[[2]string]bool)}
	for _, query := range []string{
		upsertVulnerability, deleteReferences, deleteSoftware, insertReference,
		upsertCPE, upsertSoftware, insertIndexEntry, insertIndexTerm, upsertProperty,
	} {
		stmt, err := tx.PrepareContext(ctx, d.q(query))
		if err != nil {
			w.close()
			return nil, fmt.Errorf("preparing statement: %w", err)
		}
		w.stmts[query] = stmt
	}
	return w, nil
}

func (w *ingester) close() {
	for _, stmt := range w.stmts {
		stmt.Close()
	}
}

func (w *ingester) vulnerability(v *dependency.Vulnerability) error {
	var id int64
	err := w.stmts[upsertVulnerability].QueryRowContext(w.ctx,
		v.Name, v.Description, v.CWE, v.Severity, v.CVSS.Score,
		v.CVSS.AccessVector, v.CVSS.AccessComplexity, v.CVSS.Authentication,
		v.CVSS.ConfidentialityImpact, v.CVSS.IntegrityImpact, v.CVSS.AvailabilityImpact,
		v.Published, v.Modified,
	).Scan(&id)
	if err != nil {
		return err
	}

	// A modified entry replaces the references and software of the
	// previous revision.
	if _, err := w.stmts[deleteReferences].ExecContext(w.ctx, id); err != nil {
		return err
	}
	if _, err := w.stmts[deleteSoftware].ExecContext(w.ctx, id); err != nil {
		return err
	}

	for _, ref := range v.References {
		if _, err := w.stmts[insertReference].ExecContext(w.ctx, id, ref.Source, ref.Name, ref.URL); err != nil {
			return err
		}
	}
	for _, sw := range v.VulnerableSoftware {
		c := nvd.CPE{Part: nvd.PartApplication, Vendor: sw.Vendor, Product: sw.Product, Version: sw.Version, Update: sw.Update}
		if parsed, err := nvd.ParseCPE(sw.Name); err == nil {
			c = parsed
		}
		cpeID, err := w.cpe(c, false)
		if err != nil {
			return err
		}
		if _, err := w.stmts[upsertSoftware].ExecContext(w.ctx, id, cpeID, boolToInt(sw.PreviousVersions)); err != nil {
			return err
		}
	}
	return nil
}

func (w *ingester) cpe(c nvd.CPE, dictionary bool) (int64, error) {
	var id int64
	err := w.stmts[upsertCPE].QueryRowContext(w.ctx,
		c.URI(), c.Part, c.Vendor, c.Product, c.Version, c.Update, c.Title, boolToInt(dictionary),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if c.Part == nvd.PartApplication {
		if err := w.index(c.Vendor, c.Product); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (w *ingester) index(vendor, product string) error {
	key := [2]string{vendor, product}
	if w.indexed[key] {
		return nil
	}
	w.indexed[key] = true

	var id int64
	err := w.stmts[insertIndexEntry].QueryRowContext(w.ctx, vendor, product).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return insertTerms(w.ctx, w.stmts[insertIndexTerm], id, vendor, product)
}

type execer interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
}

func insertTerms(ctx context.Context, stmt execer, id int64, vendor, product string) error {
	for field, name := range map[string]string{FieldVendor: vendor, FieldProduct: product} {
		for _, term := range IndexTerms(name) {
			if _, err := stmt.ExecContext(ctx, id, field, term); err != nil {
				return err
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
