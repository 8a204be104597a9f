// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "encoding/json"

// Report is the subset of a dependency-check JSON report that carries
// collected evidence. Everything else in the document is ignored.
type Report struct {
	ReportSchema string             `json:"reportSchema"`
	ScanInfo     json.RawMessage    `json:"scanInfo,omitempty"`
	ProjectInfo  json.RawMessage    `json:"projectInfo,omitempty"`
	Dependencies []ReportDependency `json:"dependencies"`
}

// ReportDependency is one scanned file in a dependency-check report.
type ReportDependency struct {
	IsVirtual           bool               `json:"isVirtual"`
	FileName            string             `json:"fileName"`
	FilePath            string             `json:"filePath"`
	Md5                 string             `json:"md5,omitempty"`
	Sha1                string             `json:"sha1,omitempty"`
	Sha256              string             `json:"sha256,omitempty"`
	Description         string             `json:"description,omitempty"`
	License             string             `json:"license,omitempty"`
	EvidenceCollected   EvidenceCollected  `json:"evidenceCollected"`
	RelatedDependencies []ReportDependency `json:"relatedDependencies,omitempty"`
	PackageIDs          []ReportIdentifier `json:"packageIds,omitempty"`
	VulnerabilityIDs    []ReportIdentifier `json:"vulnerabilityIds,omitempty"`
}

// EvidenceCollected groups the three evidence axes of a report dependency.
type EvidenceCollected struct {
	VendorEvidence  []ReportEvidence `json:"vendorEvidence"`
	ProductEvidence []ReportEvidence `json:"productEvidence"`
	VersionEvidence []ReportEvidence `json:"versionEvidence"`
}

// ReportEvidence is a single evidence item as serialized by dependency-check.
type ReportEvidence struct {
	Type       string `json:"type"`
	Confidence string `json:"confidence"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	Value      string `json:"value"`
}

// ReportIdentifier is a package or vulnerability identifier of a report
// dependency.
type ReportIdentifier struct {
	ID         string `json:"id"`
	Confidence string `json:"confidence,omitempty"`
	URL        string `json:"url,omitempty"`
}
