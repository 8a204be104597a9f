// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

// Priority holds the exploitation data attached to a matched
// vulnerability after identification.
type Priority struct {
	Risk *float64  `json:"risk,omitempty"`
	EPSS *EPSSData `json:"epss,omitempty"`
	KEV  *KEVData  `json:"kev,omitempty"`
}

// EPSSScore returns the EPSS probability, or 0 when unknown.
func (p *Priority) EPSSScore() float64 {
	if p == nil || p.EPSS == nil || p.EPSS.Score == nil {
		return 0
	}
	return *p.EPSS.Score
}

// RiskScore returns the composite risk, or 0 when it was not computed.
func (p *Priority) RiskScore() float64 {
	if p == nil || p.Risk == nil {
		return 0
	}
	return *p.Risk
}

// Exploited reports whether the vulnerability is listed in the KEV catalog.
func (p *Priority) Exploited() bool {
	return p != nil && p.KEV != nil && p.KEV.Listed
}

// EPSSData holds the EPSS score and percentile for a CVE.
type EPSSData struct {
	Score        *float64 `json:"score"`
	Percentile   *float64 `json:"percentile"`
	ModelVersion string   `json:"modelVersion,omitempty"`
	ScoreDate    string   `json:"scoreDate,omitempty"`
}

// KEVData holds the Known Exploited Vulnerability data for a CVE.
type KEVData struct {
	Listed                     bool   `json:"listed"`
	DateAdded                  string `json:"dateAdded,omitempty"`
	DueDate                    string `json:"dueDate,omitempty"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse,omitempty"`
}

// EPSSEntry is one row of the EPSS CSV feed.
type EPSSEntry struct {
	CVE        string
	Score      float64
	Percentile float64
}

// KEVEntry is one entry of the CISA KEV catalog.
type KEVEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	DateAdded                  string `json:"dateAdded"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// KEVCatalog is the CISA KEV catalog document.
type KEVCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []KEVEntry `json:"vulnerabilities"`
}
