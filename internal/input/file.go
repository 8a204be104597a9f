// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
)

const fileSource = "file"

// nameVersion splits "name-1.2.3" and "name_v1.2.3" style base names.
var nameVersion = regexp.MustCompile(`^(.+?)[-_]v?(\d+(?:[.\-_][0-9A-Za-z]+)*)$`)

// FromFile hashes the file at path and derives evidence from its name.
func FromFile(path string) (*dependency.Dependency, error) {
	d, err := dependency.NewFromFile(path)
	if err != nil {
		return nil, err
	}
	AddFileNameEvidence(d)
	return d, nil
}

// AddFileNameEvidence adds the product, vendor and version implied by the
// file name of d at MEDIUM confidence.
func AddFileNameEvidence(d *dependency.Dependency) {
	base := strings.TrimSuffix(d.FileName, filepath.Ext(d.FileName))
	if base == "" {
		return
	}
	name := base
	if m := nameVersion.FindStringSubmatch(base); m != nil {
		name = m[1]
		d.Version.Add(fileSource, "version", m[2], dependency.Medium)
	}
	d.Product.Add(fileSource, "name", name, dependency.Medium)
	d.Vendor.Add(fileSource, "name", name, dependency.Medium)
}
