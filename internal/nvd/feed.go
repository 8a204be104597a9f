// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package nvd decodes the NVD XML data feeds: the CVE 2.0 schema, the
// legacy 1.2 schema that carries the "previous versions" flags, and the
// CPE dictionary.
package nvd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
)

const rejected = "** REJECT **"

// Feed is the decoded content of one feed segment.
type Feed struct {
	Vulnerabilities []dependency.Vulnerability
	// Products holds CPE dictionary entries. Vulnerability feeds leave it
	// empty; their CPEs are carried by the affected software lists.
	Products []CPE
}

type entry20 struct {
	CVEID     string   `xml:"cve-id"`
	Published string   `xml:"published-datetime"`
	Modified  string   `xml:"last-modified-datetime"`
	Products  []string `xml:"vulnerable-software-list>product"`
	CVSS      struct {
		Score                 float64 `xml:"score"`
		AccessVector          string  `xml:"access-vector"`
		AccessComplexity      string  `xml:"access-complexity"`
		Authentication        string  `xml:"authentication"`
		ConfidentialityImpact string  `xml:"confidentiality-impact"`
		IntegrityImpact       string  `xml:"integrity-impact"`
		AvailabilityImpact    string  `xml:"availability-impact"`
	} `xml:"cvss>base_metrics"`
	CWE struct {
		ID string `xml:"id,attr"`
	} `xml:"cwe"`
	References []struct {
		Source    string `xml:"source"`
		Reference struct {
			Href string `xml:"href,attr"`
			Text string `xml:",chardata"`
		} `xml:"reference"`
	} `xml:"references"`
	Summary string `xml:"summary"`
}

type cpeItem struct {
	Name       string   `xml:"name,attr"`
	Deprecated bool     `xml:"deprecated,attr"`
	Titles     []string `xml:"title"`
}

// Parse decodes a feed. legacy may be nil; when set it is read as the 1.2
// schema rendition of the same segment and used to flag affected software
// that covers all previous versions.
func Parse(primary, legacy io.Reader) (*Feed, error) {
	var previous map[string]map[string]bool
	if legacy != nil {
		var err error
		if previous, err = ParsePreviousVersions(legacy); err != nil {
			return nil, err
		}
	}

	dec := xml.NewDecoder(primary)
	root, err := rootElement(dec)
	if err != nil {
		return nil, err
	}
	switch root.Name.Local {
	case "nvd":
		return parseVulnerabilities(dec, previous)
	case "cpe-list":
		return parseDictionary(dec)
	default:
		return nil, fmt.Errorf("unrecognized feed document <%s>", root.Name.Local)
	}
}

func rootElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, errors.New("empty feed document")
			}
			return xml.StartElement{}, fmt.Errorf("reading feed: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func parseVulnerabilities(dec *xml.Decoder, previous map[string]map[string]bool) (*Feed, error) {
	feed := &Feed{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return feed, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading CVE feed: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "entry" {
			continue
		}
		var e entry20
		if err := dec.DecodeElement(&e, &se); err != nil {
			return nil, fmt.Errorf("decoding CVE entry: %w", err)
		}
		if e.CVEID == "" || strings.HasPrefix(strings.TrimSpace(e.Summary), rejected) {
			continue
		}
		v, err := e.vulnerability(previous[e.CVEID])
		if err != nil {
			return nil, err
		}
		feed.Vulnerabilities = append(feed.Vulnerabilities, v)
	}
}

func (e *entry20) vulnerability(previous map[string]bool) (dependency.Vulnerability, error) {
	v := dependency.Vulnerability{
		Name:        e.CVEID,
		Description: strings.TrimSpace(e.Summary),
		CWE:         e.CWE.ID,
		Published:   e.Published,
		Modified:    e.Modified,
		CVSS: dependency.CVSS{
			Score:                 e.CVSS.Score,
			AccessVector:          e.CVSS.AccessVector,
			AccessComplexity:      e.CVSS.AccessComplexity,
			Authentication:        e.CVSS.Authentication,
			ConfidentialityImpact: e.CVSS.ConfidentialityImpact,
			IntegrityImpact:       e.CVSS.IntegrityImpact,
			AvailabilityImpact:    e.CVSS.AvailabilityImpact,
		},
	}
	v.Severity = dependency.SeverityFromScore(v.CVSS.Score)

	for _, ref := range e.References {
		if ref.Reference.Href == "" {
			continue
		}
		v.References = append(v.References, dependency.Reference{
			Source: ref.Source,
			Name:   strings.TrimSpace(ref.Reference.Text),
			URL:    ref.Reference.Href,
		})
	}

	seen := make(map[string]bool, len(e.Products))
	for _, product := range e.Products {
		c, err := ParseCPE(product)
		if err != nil {
			return v, fmt.Errorf("%s: %w", e.CVEID, err)
		}
		name := c.URI()
		if seen[name] {
			continue
		}
		seen[name] = true
		v.VulnerableSoftware = append(v.VulnerableSoftware, dependency.VulnerableSoftware{
			Name:             name,
			Vendor:           c.Vendor,
			Product:          c.Product,
			Version:          c.Version,
			Update:           c.Update,
			PreviousVersions: previous[name],
		})
	}
	return v, nil
}

func parseDictionary(dec *xml.Decoder) (*Feed, error) {
	feed := &Feed{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return feed, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading CPE dictionary: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "cpe-item" {
			continue
		}
		var item cpeItem
		if err := dec.DecodeElement(&item, &se); err != nil {
			return nil, fmt.Errorf("decoding CPE item: %w", err)
		}
		if item.Deprecated {
			continue
		}
		c, err := ParseCPE(item.Name)
		if err != nil {
			return nil, err
		}
		if len(item.Titles) > 0 {
			c.Title = strings.TrimSpace(item.Titles[0])
		}
		feed.Products = append(feed.Products, c)
	}
}
