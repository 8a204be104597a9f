// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cpe

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/bonial-oss/vulnmatch/internal/store"
)

// Search defaults.
const (
	DefaultMinScore   = 0.08
	DefaultMaxResults = 25

	// candidateLimit bounds the documents scored per query.
	candidateLimit = 500
)

// ErrSearchUnavailable is returned when the index is empty, closed or not
// built yet.
var ErrSearchUnavailable = errors.New("CPE index search unavailable")

// IndexEntry is a scored vendor/product candidate.
type IndexEntry struct {
	Vendor  string
	Product string
	Score   float64
}

func (e IndexEntry) String() string {
	return e.Vendor + ":" + e.Product
}

// Term is a query word with its boost.
type Term struct {
	Text  string
	Boost float64
}

// Query holds the terms per index field.
type Query map[string][]Term

var rxClause = regexp.MustCompile(`(\w+):\(([^)]*)\)`)

// ParseQuery parses a query produced by BuildSearch. Words are lowercased
// and split the way index terms are; a repeated word keeps its highest
// boost.
func ParseQuery(q string) (Query, error) {
	matches := rxClause.FindAllStringSubmatch(q, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("malformed query %q", q)
	}
	out := make(Query)
	for _, m := range matches {
		field := strings.ToLower(m[1])
		if _, dup := out[field]; dup {
			return nil, fmt.Errorf("field %s repeated in query %q", field, q)
		}
		terms := []Term{}
		for _, token := range strings.Fields(m[2]) {
			boost := 1.0
			if text, b, ok := strings.Cut(token, "^"); ok {
				f, err := strconv.ParseFloat(b, 64)
				if err != nil || f <= 0 {
					return nil, fmt.Errorf("invalid boost in %q", token)
				}
				token, boost = text, f
			}
			for _, word := range splitWords(token) {
				terms = addTerm(terms, Term{Text: word, Boost: boost})
			}
		}
		out[field] = terms
	}
	return out, nil
}

func addTerm(terms []Term, t Term) []Term {
	for i := range terms {
		if terms[i].Text == t.Text {
			terms[i].Boost = max(terms[i].Boost, t.Boost)
			return terms
		}
	}
	return append(terms, t)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Postings is the read side of the CPE index.
type Postings interface {
	IndexSize(ctx context.Context) (int, error)
	DocumentFrequencies(ctx context.Context, field string, terms []string) (map[string]int, error)
	IndexCandidates(ctx context.Context, terms map[string][]string, limit int) ([]store.IndexDocument, error)
}

// Searcher ranks index entries against a query.
type Searcher struct {
	postings   Postings
	minScore   float64
	maxResults int
}

// NewSearcher returns a searcher; non-positive limits select the defaults.
func NewSearcher(p Postings, minScore float64, maxResults int) *Searcher {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{postings: p, minScore: minScore, maxResults: maxResults}
}

// Search returns the entries scoring at least the minimum score, best
// first. Both the vendor and the product field must match.
//
// A field's score is the share of the query weight it matched, scaled by
// the share of the entry's own terms the query covered; a term weighs its
// boost times 1 + ln((N+1)/(df+1)).
func (s *Searcher) Search(ctx context.Context, query string) ([]IndexEntry, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}
	fields := []string{store.FieldVendor, store.FieldProduct}
	for _, f := range fields {
		if len(q[f]) == 0 {
			return nil, nil
		}
	}

	n, err := s.postings.IndexSize(ctx)
	if errors.Is(err, store.ErrClosed) || (err == nil && n == 0) {
		return nil, ErrSearchUnavailable
	}
	if err != nil {
		return nil, err
	}

	weights := make(map[string]map[string]float64, len(fields))
	candidateTerms := make(map[string][]string, len(fields))
	for _, f := range fields {
		texts := make([]string, len(q[f]))
		for i, t := range q[f] {
			texts[i] = t.Text
		}
		df, err := s.postings.DocumentFrequencies(ctx, f, texts)
		if err != nil {
			return nil, err
		}
		weights[f] = make(map[string]float64, len(texts))
		for _, t := range q[f] {
			idf := 1 + math.Log(float64(n+1)/float64(df[t.Text]+1))
			weights[f][t.Text] += t.Boost * idf
		}
		candidateTerms[f] = texts
	}

	docs, err := s.postings.IndexCandidates(ctx, candidateTerms, candidateLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	var out []IndexEntry
	for _, doc := range docs {
		score := 1.0
		for _, f := range fields {
			score *= fieldScore(weights[f], doc.Terms[f])
		}
		if score < s.minScore {
			continue
		}
		e := IndexEntry{Vendor: doc.Vendor, Product: doc.Product, Score: score}
		if seen[e.String()] {
			continue
		}
		seen[e.String()] = true
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b IndexEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := strings.Compare(a.Vendor, b.Vendor); c != 0 {
			return c
		}
		return strings.Compare(a.Product, b.Product)
	})
	if len(out) > s.maxResults {
		out = out[:s.maxResults]
	}
	return out, nil
}

func fieldScore(weights map[string]float64, docTerms []string) float64 {
	if len(docTerms) == 0 {
		return 0
	}
	var total, matched float64
	for _, w := range weights {
		total += w
	}
	covered := 0
	for _, t := range docTerms {
		if w, ok := weights[t]; ok {
			matched += w
			covered++
		}
	}
	if total == 0 || covered == 0 {
		return 0
	}
	return math.Sqrt(matched/total) * math.Sqrt(float64(covered)/float64(len(docTerms)))
}
