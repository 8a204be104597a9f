// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package dependency

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
)

// Evidence is a single observation extracted from a scanned file.
type Evidence struct {
	Source     string     `json:"source"`
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
}

// normalize is the comparison form of every evidence and identifier string.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CompareEvidence orders evidence by source, name and value ignoring case,
// then by confidence.
func CompareEvidence(a, b Evidence) int {
	if c := strings.Compare(normalize(a.Source), normalize(b.Source)); c != 0 {
		return c
	}
	if c := strings.Compare(normalize(a.Name), normalize(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(normalize(a.Value), normalize(b.Value)); c != 0 {
		return c
	}
	return cmp.Compare(a.Confidence, b.Confidence)
}

// Equal reports whether two evidence items are the same observation.
func (e Evidence) Equal(o Evidence) bool {
	return CompareEvidence(e, o) == 0
}

// EvidenceCollection is the ordered evidence set for one axis (vendor,
// product or version) of a dependency, plus the weighting terms used to
// bias searches. The zero value is ready to use.
type EvidenceCollection struct {
	items      []Evidence
	weightings []string
}

// Add inserts a new evidence item and reports whether the set changed.
func (c *EvidenceCollection) Add(source, name, value string, confidence Confidence) bool {
	return c.AddEvidence(Evidence{Source: source, Name: name, Value: value, Confidence: confidence})
}

// AddEvidence inserts e unless an equal item is already present.
func (c *EvidenceCollection) AddEvidence(e Evidence) bool {
	if strings.TrimSpace(e.Value) == "" {
		return false
	}
	i, found := slices.BinarySearchFunc(c.items, e, CompareEvidence)
	if found {
		return false
	}
	c.items = slices.Insert(c.items, i, e)
	return true
}

// AddWeighting records a term that should be boosted when searching.
func (c *EvidenceCollection) AddWeighting(term string) {
	term = normalize(term)
	if term == "" || slices.Contains(c.weightings, term) {
		return
	}
	c.weightings = append(c.weightings, term)
}

// Weightings returns the explicit weighting terms in insertion order.
func (c *EvidenceCollection) Weightings() []string {
	return slices.Clone(c.weightings)
}

// All returns a copy of every evidence item in collection order.
func (c *EvidenceCollection) All() []Evidence {
	return slices.Clone(c.items)
}

// Len returns the number of evidence items.
func (c *EvidenceCollection) Len() int {
	return len(c.items)
}

// AtConfidence returns the evidence recorded with exactly the given confidence.
func (c *EvidenceCollection) AtConfidence(confidence Confidence) []Evidence {
	var out []Evidence
	for _, e := range c.items {
		if e.Confidence == confidence {
			out = append(out, e)
		}
	}
	return out
}

// AtLeast returns the evidence whose confidence is at least min.
func (c *EvidenceCollection) AtLeast(min Confidence) []Evidence {
	var out []Evidence
	for _, e := range c.items {
		if e.Confidence >= min {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether the text of any evidence with at least the given
// confidence holds value, ignoring case.
func (c *EvidenceCollection) Contains(value string, min Confidence) bool {
	value = normalize(value)
	if value == "" {
		return false
	}
	for _, e := range c.items {
		if e.Confidence >= min && strings.Contains(normalize(e.Value), value) {
			return true
		}
	}
	return false
}

// Union returns a new collection holding the evidence and weightings of c
// and every other collection.
func (c *EvidenceCollection) Union(others ...*EvidenceCollection) *EvidenceCollection {
	out := &EvidenceCollection{}
	for _, src := range append([]*EvidenceCollection{c}, others...) {
		if src == nil {
			continue
		}
		for _, e := range src.items {
			out.AddEvidence(e)
		}
		for _, w := range src.weightings {
			out.AddWeighting(w)
		}
	}
	return out
}

type collectionDocument struct {
	Evidence   []Evidence `json:"evidence"`
	Weightings []string   `json:"weightings,omitempty"`
}

func (c EvidenceCollection) MarshalJSON() ([]byte, error) {
	doc := collectionDocument{Evidence: c.items, Weightings: c.weightings}
	if doc.Evidence == nil {
		doc.Evidence = []Evidence{}
	}
	return json.Marshal(doc)
}

func (c *EvidenceCollection) UnmarshalJSON(data []byte) error {
	var doc collectionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = EvidenceCollection{}
	for _, e := range doc.Evidence {
		if e.Confidence == 0 {
			e.Confidence = Medium
		}
		c.AddEvidence(e)
	}
	for _, w := range doc.Weightings {
		c.AddWeighting(w)
	}
	return nil
}
