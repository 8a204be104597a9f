// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
)

// CPEs returns every known CPE entry of a vendor and product.
func (s *Store) CPEs(ctx context.Context, vendor, product string) ([]nvd.CPE, error) {
	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.q(`SELECT part, vendor, product, version, update_version, title
FROM cpe_entry WHERE vendor = ? AND product = ? ORDER BY cpe`), vendor, product)
	if err != nil {
		return nil, fmt.Errorf("querying CPE entries: %w", err)
	}
	defer rows.Close()

	var out []nvd.CPE
	for rows.Next() {
		var c nvd.CPE
		if err := rows.Scan(&c.Part, &c.Vendor, &c.Product, &c.Version, &c.Update, &c.Title); err != nil {
			return nil, fmt.Errorf("scanning CPE entry: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Vulnerabilities returns the vulnerabilities affecting any version of a
// vendor and product. Each record carries only the affected software
// entries of that vendor and product, sorted by CPE.
func (s *Store) Vulnerabilities(ctx context.Context, vendor, product string) ([]dependency.Vulnerability, error) {
	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.q(`SELECT v.id, v.cve, v.description, v.cwe, v.severity, v.cvss_score,
	v.cvss_access_vector, v.cvss_access_complexity, v.cvss_authentication,
	v.cvss_confidentiality_impact, v.cvss_integrity_impact, v.cvss_availability_impact,
	v.published, v.modified,
	c.cpe, c.vendor, c.product, c.version, c.update_version, s.previous_version
FROM vulnerability v
JOIN software s ON s.cve_id = v.id
JOIN cpe_entry c ON c.id = s.cpe_entry_id
WHERE c.vendor = ? AND c.product = ?
ORDER BY v.cve, c.cpe`), vendor, product)
	if err != nil {
		return nil, fmt.Errorf("querying vulnerabilities: %w", err)
	}

	var (
		vulns []dependency.Vulnerability
		ids   []any
	)
	for rows.Next() {
		var (
			id   int64
			v    dependency.Vulnerability
			sw   dependency.VulnerableSoftware
			prev int
		)
		if err := rows.Scan(&id, &v.Name, &v.Description, &v.CWE, &v.Severity, &v.CVSS.Score,
			&v.CVSS.AccessVector, &v.CVSS.AccessComplexity, &v.CVSS.Authentication,
			&v.CVSS.ConfidentialityImpact, &v.CVSS.IntegrityImpact, &v.CVSS.AvailabilityImpact,
			&v.Published, &v.Modified,
			&sw.Name, &sw.Vendor, &sw.Product, &sw.Version, &sw.Update, &prev); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning vulnerability: %w", err)
		}
		sw.PreviousVersions = prev != 0
		if len(vulns) == 0 || vulns[len(vulns)-1].Name != v.Name {
			vulns = append(vulns, v)
			ids = append(ids, id)
		}
		last := &vulns[len(vulns)-1]
		last.VulnerableSoftware = append(last.VulnerableSoftware, sw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	refs, err := s.references(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		vulns[i].References = refs[id.(int64)]
	}
	return vulns, nil
}

func (s *Store) references(ctx context.Context, ids []any) (map[int64][]dependency.Reference, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.q(`SELECT cve_id, source, name, url FROM vuln_reference
WHERE cve_id IN (`+placeholders(len(ids))+`) ORDER BY cve_id, url`), ids...)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]dependency.Reference)
	for rows.Next() {
		var (
			id  int64
			ref dependency.Reference
		)
		if err := rows.Scan(&id, &ref.Source, &ref.Name, &ref.URL); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		out[id] = append(out[id], ref)
	}
	return out, rows.Err()
}
