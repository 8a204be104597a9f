// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Index fields.
const (
	FieldVendor  = "vendor"
	FieldProduct = "product"
)

// IndexDocument is one indexed vendor/product pair with its terms per field.
type IndexDocument struct {
	ID      int64
	Vendor  string
	Product string
	Terms   map[string][]string
}

// IndexTerms splits a vendor or product name into its lowercase words and
// adds every pair of adjacent words joined together, so "spring_framework"
// is found by "spring", "framework" and "springframework".
func IndexTerms(name string) []string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	add := func(t string) {
		if !slices.Contains(terms, t) {
			terms = append(terms, t)
		}
	}
	for i, w := range words {
		add(w)
		if i+1 < len(words) {
			add(w + words[i+1])
		}
	}
	return terms
}

// IndexSize returns the number of indexed vendor/product pairs.
func (s *Store) IndexSize(ctx context.Context) (int, error) {
	if err := s.rlock(); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cpe_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting index entries: %w", err)
	}
	return n, nil
}

// DocumentFrequencies returns, for each term, the number of index entries
// whose field contains it. Terms that occur nowhere are omitted.
func (s *Store) DocumentFrequencies(ctx context.Context, field string, terms []string) (map[string]int, error) {
	out := make(map[string]int)
	if len(terms) == 0 {
		return out, nil
	}
	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	query := `SELECT term, COUNT(*) FROM cpe_index_term WHERE field = ? AND term IN (` +
		placeholders(len(terms)) + `) GROUP BY term`
	args := append([]any{field}, toArgs(terms)...)
	rows, err := s.db.QueryContext(ctx, s.dialect.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying term frequencies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var term string
		var n int
		if err := rows.Scan(&term, &n); err != nil {
			return nil, fmt.Errorf("scanning term frequency: %w", err)
		}
		out[term] = n
	}
	return out, rows.Err()
}

// IndexCandidates returns up to limit index entries that match at least one
// term in every given field, entries matching more terms first.
func (s *Store) IndexCandidates(ctx context.Context, terms map[string][]string, limit int) ([]IndexDocument, error) {
	fields := make([]string, 0, len(terms))
	for field, ts := range terms {
		if len(ts) == 0 {
			return nil, nil
		}
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	slices.Sort(fields)

	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var where, having []string
	var args []any
	for _, field := range fields {
		where = append(where, `(field = ? AND term IN (`+placeholders(len(terms[field]))+`))`)
		args = append(args, field)
		args = append(args, toArgs(terms[field])...)
	}
	for _, field := range fields {
		having = append(having, `SUM(CASE WHEN field = ? THEN 1 ELSE 0 END) > 0`)
		args = append(args, field)
	}
	args = append(args, limit)

	query := `SELECT entry_id FROM cpe_index_term WHERE ` + strings.Join(where, " OR ") +
		` GROUP BY entry_id HAVING ` + strings.Join(having, " AND ") +
		` ORDER BY COUNT(*) DESC, entry_id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying index candidates: %w", err)
	}
	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning index candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.loadDocuments(ctx, ids)
}

func (s *Store) loadDocuments(ctx context.Context, ids []any) ([]IndexDocument, error) {
	query := `SELECT i.id, i.vendor, i.product, t.field, t.term
FROM cpe_index i JOIN cpe_index_term t ON t.entry_id = i.id
WHERE i.id IN (` + placeholders(len(ids)) + `) ORDER BY i.id`
	rows, err := s.db.QueryContext(ctx, s.dialect.q(query), ids...)
	if err != nil {
		return nil, fmt.Errorf("loading index entries: %w", err)
	}
	defer rows.Close()

	var docs []IndexDocument
	for rows.Next() {
		var (
			id                           int64
			vendor, product, field, term string
		)
		if err := rows.Scan(&id, &vendor, &product, &field, &term); err != nil {
			return nil, fmt.Errorf("scanning index entry: %w", err)
		}
		if len(docs) == 0 || docs[len(docs)-1].ID != id {
			docs = append(docs, IndexDocument{ID: id, Vendor: vendor, Product: product, Terms: make(map[string][]string)})
		}
		doc := &docs[len(docs)-1]
		doc.Terms[field] = append(doc.Terms[field], term)
	}
	return docs, rows.Err()
}

// RebuildIndex recreates the search index from the known application CPEs.
func (s *Store) RebuildIndex(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting index rebuild: %w", err)
	}
	defer tx.Rollback()
	if err := rebuildIndex(ctx, tx, s.dialect); err != nil {
		return err
	}
	return tx.Commit()
}

func rebuildIndex(ctx context.Context, tx *sql.Tx, d dialect) error {
	for _, stmt := range []string{`DELETE FROM cpe_index_term`, `DELETE FROM cpe_index`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT vendor, product FROM cpe_entry WHERE part = 'a' ORDER BY vendor, product`)
	if err != nil {
		return fmt.Errorf("listing CPE entries: %w", err)
	}
	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			rows.Close()
			return fmt.Errorf("scanning CPE entry: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	entryStmt, err := tx.PrepareContext(ctx, d.q(insertIndexEntry))
	if err != nil {
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer entryStmt.Close()
	termStmt, err := tx.PrepareContext(ctx, d.q(insertIndexTerm))
	if err != nil {
		return fmt.Errorf("preparing term insert: %w", err)
	}
	defer termStmt.Close()

	for _, p := range pairs {
		var id int64
		if err := entryStmt.QueryRowContext(ctx, p[0], p[1]).Scan(&id); err != nil {
			return fmt.Errorf("indexing %s:%s: %w", p[0], p[1], err)
		}
		if err := insertTerms(ctx, termStmt, id, p[0], p[1]); err != nil {
			return fmt.Errorf("indexing %s:%s: %w", p[0], p[1], err)
		}
	}
	return nil
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
