// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	id := s.dialect.autoID
	statements := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id VARCHAR(64) PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vulnerability (
			id %s,
			cve VARCHAR(32) NOT NULL UNIQUE,
			description TEXT NOT NULL,
			cwe VARCHAR(32) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			cvss_score DOUBLE PRECISION NOT NULL,
			cvss_access_vector VARCHAR(32) NOT NULL,
			cvss_access_complexity VARCHAR(32) NOT NULL,
			cvss_authentication VARCHAR(32) NOT NULL,
			cvss_confidentiality_impact VARCHAR(32) NOT NULL,
			cvss_integrity_impact VARCHAR(32) NOT NULL,
			cvss_availability_impact VARCHAR(32) NOT NULL,
			published VARCHAR(40) NOT NULL,
			modified VARCHAR(40) NOT NULL
		)`, id),
		`CREATE TABLE IF NOT EXISTS vuln_reference (
			cve_id BIGINT NOT NULL,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vuln_reference_cve ON vuln_reference (cve_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cpe_entry (
			id %s,
			cpe VARCHAR(512) NOT NULL UNIQUE,
			part VARCHAR(4) NOT NULL,
			vendor VARCHAR(255) NOT NULL,
			product VARCHAR(255) NOT NULL,
			version VARCHAR(255) NOT NULL,
			update_version VARCHAR(255) NOT NULL,
			title TEXT NOT NULL,
			dictionary INTEGER NOT NULL DEFAULT 0
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_cpe_entry_vendor_product ON cpe_entry (vendor, product)`,
		`CREATE TABLE IF NOT EXISTS software (
			cve_id BIGINT NOT NULL,
			cpe_entry_id BIGINT NOT NULL,
			previous_version INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (cve_id, cpe_entry_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_software_cpe_entry ON software (cpe_entry_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cpe_index (
			id %s,
			vendor VARCHAR(255) NOT NULL,
			product VARCHAR(255) NOT NULL,
			UNIQUE (vendor, product)
		)`, id),
		`CREATE TABLE IF NOT EXISTS cpe_index_term (
			entry_id BIGINT NOT NULL,
			field VARCHAR(16) NOT NULL,
			term VARCHAR(255) NOT NULL,
			PRIMARY KEY (entry_id, field, term)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cpe_index_term ON cpe_index_term (field, term)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
