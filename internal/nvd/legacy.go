// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package nvd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type entry12 struct {
	Name     string `xml:"name,attr"`
	Products []struct {
		Name     string `xml:"name,attr"`
		Vendor   string `xml:"vendor,attr"`
		Versions []struct {
			Num     string `xml:"num,attr"`
			Prev    string `xml:"prev,attr"`
			Edition string `xml:"edition,attr"`
		} `xml:"vers"`
	} `xml:"vuln_soft>prod"`
}

// ParsePreviousVersions reads a 1.2 schema feed and returns, per CVE, the
// CPE URIs flagged as "this and all previous versions".
func ParsePreviousVersions(r io.Reader) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading legacy CVE feed: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "entry" {
			continue
		}
		var e entry12
		if err := dec.DecodeElement(&e, &se); err != nil {
			return nil, fmt.Errorf("decoding legacy CVE entry: %w", err)
		}
		for _, prod := range e.Products {
			for _, vers := range prod.Versions {
				if vers.Prev != "1" {
					continue
				}
				c := CPE{
					Part:    PartApplication,
					Vendor:  legacyName(prod.Vendor),
					Product: legacyName(prod.Name),
					Version: strings.ToLower(vers.Num),
					Update:  strings.ToLower(strings.TrimPrefix(vers.Edition, ":")),
				}
				if out[e.Name] == nil {
					out[e.Name] = make(map[string]bool)
				}
				out[e.Name][c.URI()] = true
			}
		}
	}
}

func legacyName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}
