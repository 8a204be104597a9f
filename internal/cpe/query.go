// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package cpe identifies dependencies as CPE entries by searching the
// vendor/product index with the dependency's evidence, and attaches the
// vulnerabilities recorded for the identified CPEs.
package cpe

import (
	"strings"
	"unicode"
)

// WeightingBoost is the boost applied to weighted query terms.
const WeightingBoost = "^5"

// querySyntax holds the characters with a meaning in the query syntax.
var querySyntax = strings.NewReplacer(
	"+", " ", "-", " ", "&&", " ", "||", " ", "!", " ", "(", " ", ")", " ",
	"{", " ", "}", " ", "[", " ", "]", " ", "^", " ", `"`, " ", "~", " ",
	"*", " ", "?", " ", ":", " ", `\`, " ", "/", " ",
)

// BuildSearch builds the index query for a vendor and product text. Words
// matching one of the weighting terms are boosted; a weighting term that
// differs from the word it matched is added as a boosted alternative.
func BuildSearch(vendor, product string, vendorWeightings, productWeightings []string) string {
	var b strings.Builder
	b.WriteString(" product:(")
	appendWeightedSearch(&b, product, productWeightings)
	b.WriteString(")  AND  vendor:(")
	appendWeightedSearch(&b, vendor, vendorWeightings)
	b.WriteString(") ")
	return b.String()
}

func appendWeightedSearch(b *strings.Builder, text string, weightings []string) {
	text = cleanse(text)
	if len(weightings) == 0 {
		b.WriteString(" " + text + " ")
		return
	}

	terms := make([]string, 0, len(weightings))
	for _, w := range weightings {
		if t := alphanumeric(w); t != "" {
			terms = append(terms, t)
		}
	}

	tokens := strings.Fields(text)
	b.WriteString(" ")
	for i, token := range tokens {
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		b.WriteString(" ")
		b.WriteString(weightToken(token, next, terms))
	}
	b.WriteString(" ")
}

// weightToken boosts token when it names a weighting term. When several
// terms match, the last one in terms wins.
func weightToken(token, next string, terms []string) string {
	match := ""
	for _, term := range terms {
		if matchesWeighting(token, next, term) {
			match = term
		}
	}
	switch {
	case match == "":
		return token
	case strings.EqualFold(token, match):
		return token + WeightingBoost
	default:
		return token + WeightingBoost + " " + match + WeightingBoost
	}
}

// matchesWeighting reports whether token, alone or joined with the token
// following it, names the weighting term.
func matchesWeighting(token, next, term string) bool {
	if strings.EqualFold(token, term) {
		return true
	}
	if letters := lettersOnly(token); letters != "" && strings.EqualFold(letters, lettersOnly(term)) {
		return true
	}
	return next != "" && strings.EqualFold(token+next, term)
}

// cleanse removes query syntax from free text and collapses whitespace.
func cleanse(text string) string {
	return strings.Join(strings.Fields(querySyntax.Replace(text)), " ")
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

func alphanumeric(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s))
}
