// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package nvd

import (
	"fmt"
	"strings"

	"github.com/facebookincubator/nvdtools/wfn"
)

// PartApplication is the CPE part of applications and libraries.
const PartApplication = "a"

// CPE is a parsed CPE name reduced to the attributes used for matching.
// All attributes are lowercase and unescaped; unset attributes are empty.
type CPE struct {
	Part    string
	Vendor  string
	Product string
	Version string
	Update  string
	Title   string
}

// ParseCPE parses a CPE 2.2 URI or a CPE 2.3 formatted string.
func ParseCPE(name string) (CPE, error) {
	attrs, err := wfn.Parse(strings.TrimSpace(name))
	if err != nil {
		return CPE{}, fmt.Errorf("parsing CPE %q: %w", name, err)
	}
	c := CPE{
		Part:    attribute(attrs.Part),
		Vendor:  attribute(attrs.Vendor),
		Product: attribute(attrs.Product),
		Version: attribute(attrs.Version),
		Update:  attribute(attrs.Update),
	}
	if c.Vendor == "" || c.Product == "" {
		return CPE{}, fmt.Errorf("parsing CPE %q: vendor and product are required", name)
	}
	return c, nil
}

func attribute(v string) string {
	if v == wfn.Any || v == wfn.NA {
		return ""
	}
	return strings.ToLower(wfn.StripSlashes(v))
}

// URI renders the CPE as a 2.2 URI, e.g. cpe:/a:openssl:openssl:1.0.1c.
func (c CPE) URI() string {
	part := c.Part
	if part == "" {
		part = PartApplication
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cpe:/%s:%s:%s", part, c.Vendor, c.Product)
	if c.Version != "" || c.Update != "" {
		b.WriteString(":" + c.Version)
	}
	if c.Update != "" {
		b.WriteString(":" + c.Update)
	}
	return b.String()
}

// FullVersion joins version and update the way versions are compared.
func (c CPE) FullVersion() string {
	if c.Update == "" {
		return c.Version
	}
	return c.Version + "." + c.Update
}
