// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cpe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
	"github.com/bonial-oss/vulnmatch/internal/version"
)

// DefaultSearchURL is the NVD search page an identifier links to.
const DefaultSearchURL = "https://nvd.nist.gov/vuln/search/results?form_type=Advanced&cves=on&cpe_version=%s"

// maxEvidenceText bounds the evidence text searched per axis.
const maxEvidenceText = 1000

// State is the identification state of one dependency.
type State int

const (
	NoEvidence State = iota
	CandidatesFound
	VersionResolved
	Identified
	NoMatch
)

func (s State) String() string {
	switch s {
	case NoEvidence:
		return "no_evidence"
	case CandidatesFound:
		return "candidates_found"
	case VersionResolved:
		return "version_resolved"
	case Identified:
		return "identified"
	case NoMatch:
		return "no_match"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resolution is the outcome of identifying one dependency.
type Resolution struct {
	State      State
	Identifier dependency.Identifier
	// Candidates are the index entries the search returned.
	Candidates []IndexEntry
	// Consulted is the evidence identification read.
	Consulted []dependency.Evidence
}

// Store is the read side of the local vulnerability store.
type Store interface {
	Postings
	CPEs(ctx context.Context, vendor, product string) ([]nvd.CPE, error)
	Vulnerabilities(ctx context.Context, vendor, product string) ([]dependency.Vulnerability, error)
}

// Options tune identification.
type Options struct {
	MinScore   float64
	MaxResults int
	// SearchURL is a format string receiving the query-escaped CPE.
	SearchURL string
}

// Analyzer identifies dependencies and attaches their vulnerabilities. It
// is safe for concurrent use as long as each dependency is handled by a
// single goroutine.
type Analyzer struct {
	store     Store
	searcher  *Searcher
	searchURL string
	logger    hclog.Logger
}

// NewAnalyzer returns an analyzer reading from st.
func NewAnalyzer(st Store, opts Options, logger hclog.Logger) *Analyzer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	return &Analyzer{
		store:     st,
		searcher:  NewSearcher(st, opts.MinScore, opts.MaxResults),
		searchURL: opts.SearchURL,
		logger:    logger,
	}
}

// Analyze identifies dep and attaches the vulnerabilities of its CPE
// identifiers.
func (a *Analyzer) Analyze(ctx context.Context, dep *dependency.Dependency) (Resolution, error) {
	res, err := a.DetermineCPE(ctx, dep)
	if err != nil {
		return res, err
	}
	if err := a.LookupVulnerabilities(ctx, dep); err != nil {
		return res, err
	}
	return res, nil
}

// DetermineCPE searches with the evidence of each confidence level in turn,
// from highest to lowest, each level adding its evidence to the text of the
// levels before. It stops at the first level that identifies the dependency
// and records the consulted evidence on it.
func (a *Analyzer) DetermineCPE(ctx context.Context, dep *dependency.Dependency) (Resolution, error) {
	if dep.Vendor.Len() == 0 || dep.Product.Len() == 0 {
		return Resolution{State: NoMatch}, nil
	}

	var vendor, product string
	last := Resolution{State: NoMatch}
	for _, conf := range dependency.Levels {
		vendor = addEvidenceText(vendor, dep.Vendor.AtConfidence(conf))
		product = addEvidenceText(product, dep.Product.AtConfidence(conf))
		if vendor == "" || product == "" {
			continue
		}
		res, err := a.DetermineIdentifiers(ctx, dep, vendor, product, conf)
		if err != nil {
			return res, err
		}
		last = res
		if res.State == Identified {
			for _, e := range res.Consulted {
				dep.Consulted.AddEvidence(e)
			}
			a.logger.Debug("dependency identified", "dependency", dep.DisplayName(),
				"cpe", res.Identifier.Value, "confidence", conf)
			return res, nil
		}
	}
	last.State = NoMatch
	return last, nil
}

// addEvidenceText appends the evidence values whose text is not in text
// yet. URLs lose their scheme and have their dots turned into spaces.
func addEvidenceText(text string, evidence []dependency.Evidence) string {
	b := " " + text + " "
	for _, e := range evidence {
		value := strings.TrimSpace(e.Value)
		for _, scheme := range []string{"http://", "https://"} {
			if after, ok := strings.CutPrefix(value, scheme); ok {
				value = strings.ReplaceAll(after, ".", " ")
			}
		}
		if value == "" || strings.Contains(b, " "+value+" ") {
			continue
		}
		if len(b)+len(value) > maxEvidenceText {
			break
		}
		b += value + " "
	}
	return strings.TrimSpace(b)
}

// DetermineIdentifiers searches the index for vendor and product and walks
// the ranked candidates. The first candidate the evidence supports and the
// store knows becomes a CPE identifier of dep, versioned when a version
// evidence names a known release.
func (a *Analyzer) DetermineIdentifiers(ctx context.Context, dep *dependency.Dependency, vendor, product string, confidence dependency.Confidence) (Resolution, error) {
	res := Resolution{State: NoEvidence}
	if dep.Vendor.Len() == 0 || dep.Product.Len() == 0 ||
		strings.TrimSpace(vendor) == "" || strings.TrimSpace(product) == "" {
		res.State = NoMatch
		return res, nil
	}

	vendorEvidence := dep.Vendor.AtLeast(confidence)
	productEvidence := dep.Product.AtLeast(confidence)
	res.Consulted = append(append(res.Consulted, vendorEvidence...), productEvidence...)

	query := BuildSearch(vendor, product, weightings(&dep.Vendor), weightings(&dep.Product))
	entries, err := a.searcher.Search(ctx, query)
	if errors.Is(err, ErrSearchUnavailable) {
		a.logger.Debug("CPE index unavailable", "dependency", dep.DisplayName())
		res.State = NoMatch
		return res, nil
	}
	if err != nil {
		res.State = NoMatch
		return res, fmt.Errorf("searching CPE index for %s: %w", dep.DisplayName(), err)
	}
	if len(entries) == 0 {
		res.State = NoMatch
		return res, nil
	}
	res.State = CandidatesFound
	res.Candidates = entries

	consultedVendor := collection(vendorEvidence)
	consultedProduct := collection(productEvidence)
	for _, entry := range entries {
		if !verifyEntry(entry.Vendor, consultedVendor, vendor) || !verifyEntry(entry.Product, consultedProduct, product) {
			continue
		}
		known, err := a.store.CPEs(ctx, entry.Vendor, entry.Product)
		if err != nil {
			res.State = NoMatch
			return res, fmt.Errorf("loading CPEs of %s: %w", entry, err)
		}
		if len(known) == 0 {
			continue
		}

		name := nvd.CPE{Part: nvd.PartApplication, Vendor: entry.Vendor, Product: entry.Product}.URI()
		if c, ev, ok := resolveVersion(known, dep.Version.All()); ok {
			res.State = VersionResolved
			res.Consulted = append(res.Consulted, ev)
			name = c.URI()
		}

		res.Identifier = dependency.Identifier{
			Type:       dependency.IdentifierCPE,
			Value:      name,
			URL:        fmt.Sprintf(a.searchURL, url.QueryEscape(name)),
			Confidence: confidence,
		}
		dep.AddIdentifier(res.Identifier)
		res.State = Identified
		return res, nil
	}
	res.State = NoMatch
	return res, nil
}

// weightings returns the explicit weighting terms of c plus the values of
// its high confidence evidence.
func weightings(c *dependency.EvidenceCollection) []string {
	out := c.Weightings()
	for _, e := range c.AtLeast(dependency.High) {
		if t := alphanumeric(e.Value); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func collection(evidence []dependency.Evidence) *dependency.EvidenceCollection {
	c := &dependency.EvidenceCollection{}
	for _, e := range evidence {
		c.AddEvidence(e)
	}
	return c
}

var rxWordSeparator = regexp.MustCompile(`[\s_-]+`)

// verifyEntry reports whether every word of an index entry's vendor or
// product occurs in the consulted evidence or the searched text. Words of
// up to two characters are joined with the word that follows them.
func verifyEntry(name string, evidence *dependency.EvidenceCollection, text string) bool {
	text = strings.ToLower(text)
	words := entryWords(name)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !evidence.Contains(w, dependency.Low) && !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func entryWords(name string) []string {
	var (
		words   []string
		pending string
	)
	for _, w := range rxWordSeparator.Split(strings.ToLower(name), -1) {
		if w == "" {
			continue
		}
		if pending != "" {
			words = append(words, pending+w)
			pending = ""
			continue
		}
		if len(w) <= 2 {
			pending = w
			continue
		}
		words = append(words, w)
	}
	if pending != "" {
		if len(words) == 0 {
			words = append(words, pending)
		} else {
			words[len(words)-1] += pending
		}
	}
	return words
}

// resolveVersion picks the known CPE whose version one of the version
// evidence names. Higher confidence evidence wins, then the more specific
// version.
func resolveVersion(known []nvd.CPE, evidence []dependency.Evidence) (nvd.CPE, dependency.Evidence, bool) {
	var (
		best      nvd.CPE
		bestEv    dependency.Evidence
		bestParts int
		found     bool
	)
	for _, conf := range dependency.Levels {
		for _, ev := range evidence {
			if ev.Confidence != conf {
				continue
			}
			evVersion := version.Parse(ev.Value)
			if evVersion == nil {
				continue
			}
			for _, c := range known {
				if c.Version == "" || c.Version == "-" {
					continue
				}
				kv := version.New(c.FullVersion())
				if !evVersion.Equal(kv) {
					continue
				}
				if parts := len(kv.Parts()); !found || parts > bestParts {
					best, bestEv, bestParts, found = c, ev, parts, true
				}
			}
		}
		if found {
			return best, bestEv, true
		}
	}
	return nvd.CPE{}, dependency.Evidence{}, false
}
