// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package dependency

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Dependency is one scanned artifact together with the evidence collected
// for it and everything it has been matched against.
//
// A Dependency is not safe for concurrent mutation; callers that scan in
// parallel hand each dependency to a single goroutine.
type Dependency struct {
	FilePath      string
	FileName      string
	FileExtension string
	MD5           string
	SHA1          string
	SHA256        string
	Description   string
	License       string

	Vendor  EvidenceCollection
	Product EvidenceCollection
	Version EvidenceCollection

	// Consulted holds the evidence that identification actually read.
	Consulted EvidenceCollection

	RelatedDependencies []*Dependency
	AvailableVersions   []string

	identifiers               []Identifier
	suppressedIdentifiers     []Identifier
	vulnerabilities           []Vulnerability
	suppressedVulnerabilities []Vulnerability
}

// New returns an empty dependency for the given path.
func New(path string) *Dependency {
	d := &Dependency{FilePath: path}
	if path != "" {
		d.FileName = filepath.Base(path)
		d.FileExtension = strings.TrimPrefix(filepath.Ext(d.FileName), ".")
	}
	return d
}

// NewFromFile returns a dependency for an existing file with its content
// hashes computed.
func NewFromFile(path string) (*Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	md5h, sha1h, sha256h := md5.New(), sha1.New(), sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5h, sha1h, sha256h), f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}

	d := New(path)
	d.MD5 = hex.EncodeToString(md5h.Sum(nil))
	d.SHA1 = hex.EncodeToString(sha1h.Sum(nil))
	d.SHA256 = hex.EncodeToString(sha256h.Sum(nil))
	return d, nil
}

// DisplayName is the name used for the dependency in reports.
func (d *Dependency) DisplayName() string {
	if d.FileName != "" {
		return d.FileName
	}
	return d.FilePath
}

// AddIdentifier adds id unless an identifier with the same type and value
// is already present, in which case the higher confidence is kept. It
// reports whether a new identifier was added.
func (d *Dependency) AddIdentifier(id Identifier) bool {
	for i := range d.identifiers {
		if d.identifiers[i].key() == id.key() {
			if id.Confidence > d.identifiers[i].Confidence {
				d.identifiers[i].Confidence = id.Confidence
			}
			return false
		}
	}
	i, _ := slices.BinarySearchFunc(d.identifiers, id, CompareIdentifiers)
	d.identifiers = slices.Insert(d.identifiers, i, id)
	return true
}

// Identifiers returns the identifiers ordered by value.
func (d *Dependency) Identifiers() []Identifier {
	return slices.Clone(d.identifiers)
}

// IdentifiersOfType returns the identifiers of one type.
func (d *Dependency) IdentifiersOfType(typ string) []Identifier {
	var out []Identifier
	for _, id := range d.identifiers {
		if strings.EqualFold(id.Type, typ) {
			out = append(out, id)
		}
	}
	return out
}

// SuppressIdentifier moves a matching identifier to the suppressed set.
func (d *Dependency) SuppressIdentifier(id Identifier) bool {
	for i := range d.identifiers {
		if d.identifiers[i].key() == id.key() {
			d.suppressedIdentifiers = append(d.suppressedIdentifiers, d.identifiers[i])
			d.identifiers = slices.Delete(d.identifiers, i, i+1)
			return true
		}
	}
	return false
}

// SuppressedIdentifiers returns the identifiers removed by suppression rules.
func (d *Dependency) SuppressedIdentifiers() []Identifier {
	return slices.Clone(d.suppressedIdentifiers)
}

func compareVulnerabilities(a, b Vulnerability) int {
	return strings.Compare(a.Name, b.Name)
}

// AddVulnerability adds v unless a vulnerability with the same name is
// already attached.
func (d *Dependency) AddVulnerability(v Vulnerability) bool {
	i, found := slices.BinarySearchFunc(d.vulnerabilities, v, compareVulnerabilities)
	if found {
		return false
	}
	d.vulnerabilities = slices.Insert(d.vulnerabilities, i, v)
	return true
}

// Vulnerabilities returns the attached vulnerabilities sorted by name.
func (d *Dependency) Vulnerabilities() []Vulnerability {
	return slices.Clone(d.vulnerabilities)
}

// UpdateVulnerabilities calls fn for every attached vulnerability.
func (d *Dependency) UpdateVulnerabilities(fn func(v *Vulnerability)) {
	for i := range d.vulnerabilities {
		fn(&d.vulnerabilities[i])
	}
}

// RetainVulnerabilities drops every vulnerability for which keep is false.
func (d *Dependency) RetainVulnerabilities(keep func(v Vulnerability) bool) {
	d.vulnerabilities = slices.DeleteFunc(d.vulnerabilities, func(v Vulnerability) bool {
		return !keep(v)
	})
}

// SuppressVulnerability moves the named vulnerability to the suppressed set.
func (d *Dependency) SuppressVulnerability(name string) bool {
	i, found := slices.BinarySearchFunc(d.vulnerabilities, Vulnerability{Name: name}, compareVulnerabilities)
	if !found {
		return false
	}
	v := d.vulnerabilities[i]
	d.vulnerabilities = slices.Delete(d.vulnerabilities, i, i+1)
	j, _ := slices.BinarySearchFunc(d.suppressedVulnerabilities, v, compareVulnerabilities)
	d.suppressedVulnerabilities = slices.Insert(d.suppressedVulnerabilities, j, v)
	return true
}

// SuppressedVulnerabilities returns the vulnerabilities removed by
// suppression rules, sorted by name.
func (d *Dependency) SuppressedVulnerabilities() []Vulnerability {
	return slices.Clone(d.suppressedVulnerabilities)
}

type document struct {
	FilePath                  string             `json:"filePath"`
	FileName                  string             `json:"fileName,omitempty"`
	FileExtension             string             `json:"fileExtension,omitempty"`
	MD5                       string             `json:"md5,omitempty"`
	SHA1                      string             `json:"sha1,omitempty"`
	SHA256                    string             `json:"sha256,omitempty"`
	Description               string             `json:"description,omitempty"`
	License                   string             `json:"license,omitempty"`
	Vendor                    EvidenceCollection `json:"vendorEvidence"`
	Product                   EvidenceCollection `json:"productEvidence"`
	Version                   EvidenceCollection `json:"versionEvidence"`
	Consulted                 []Evidence         `json:"consultedEvidence,omitempty"`
	Identifiers               []Identifier       `json:"identifiers,omitempty"`
	SuppressedIdentifiers     []Identifier       `json:"suppressedIdentifiers,omitempty"`
	Vulnerabilities           []Vulnerability    `json:"vulnerabilities,omitempty"`
	SuppressedVulnerabilities []Vulnerability    `json:"suppressedVulnerabilities,omitempty"`
	RelatedDependencies       []*Dependency      `json:"relatedDependencies,omitempty"`
	AvailableVersions         []string           `json:"availableVersions,omitempty"`
}

func (d *Dependency) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		FilePath:                  d.FilePath,
		FileName:                  d.FileName,
		FileExtension:             d.FileExtension,
		MD5:                       d.MD5,
		SHA1:                      d.SHA1,
		SHA256:                    d.SHA256,
		Description:               d.Description,
		License:                   d.License,
		Vendor:                    d.Vendor,
		Product:                   d.Product,
		Version:                   d.Version,
		Consulted:                 d.Consulted.All(),
		Identifiers:               d.identifiers,
		SuppressedIdentifiers:     d.suppressedIdentifiers,
		Vulnerabilities:           d.vulnerabilities,
		SuppressedVulnerabilities: d.suppressedVulnerabilities,
		RelatedDependencies:       d.RelatedDependencies,
		AvailableVersions:         d.AvailableVersions,
	})
}

func (d *Dependency) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*d = *New(doc.FilePath)
	if doc.FileName != "" {
		d.FileName = doc.FileName
	}
	if doc.FileExtension != "" {
		d.FileExtension = doc.FileExtension
	}
	d.MD5, d.SHA1, d.SHA256 = doc.MD5, doc.SHA1, doc.SHA256
	d.Description, d.License = doc.Description, doc.License
	d.Vendor, d.Product, d.Version = doc.Vendor, doc.Product, doc.Version
	for _, e := range doc.Consulted {
		d.Consulted.AddEvidence(e)
	}
	for _, id := range doc.Identifiers {
		d.AddIdentifier(id)
	}
	d.suppressedIdentifiers = doc.SuppressedIdentifiers
	for _, v := range doc.Vulnerabilities {
		d.AddVulnerability(v)
	}
	for _, v := range doc.SuppressedVulnerabilities {
		i, found := slices.BinarySearchFunc(d.suppressedVulnerabilities, v, compareVulnerabilities)
		if !found {
			d.suppressedVulnerabilities = slices.Insert(d.suppressedVulnerabilities, i, v)
		}
	}
	d.RelatedDependencies = doc.RelatedDependencies
	d.AvailableVersions = doc.AvailableVersions
	return nil
}
