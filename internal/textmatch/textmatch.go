// Package textmatch holds the flexible term matching shared by the query
// planner, the relevance scorer and the stored-deal search.
package textmatch

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "best": {},
	"buy": {}, "by": {}, "cheap": {}, "deal": {}, "deals": {}, "for": {}, "from": {},
	"in": {}, "into": {}, "is": {}, "it": {}, "new": {}, "of": {}, "on": {}, "or": {},
	"than": {}, "that": {}, "the": {}, "this": {}, "to": {}, "under": {}, "over": {},
	"below": {}, "above": {}, "between": {}, "less": {}, "more": {}, "with": {},
	"without": {}, "want": {}, "need": {}, "looking": {}, "price": {}, "about": {},
}

// IsStopWord reports whether w is ignored when extracting keywords.
func IsStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

// Normalize lower-cases s, treats hyphens and underscores as spaces and
// collapses runs of whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits s into lower-cased alphanumeric words.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords extracts search keywords from free text: lower-cased, stop words
// and words of two characters or fewer removed, de-duplicated with the
// first-seen order kept.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokens(s) {
		if len(tok) <= 2 || IsStopWord(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Variants returns the singular and plural spellings of a normalized term,
// the term itself first.
func Variants(term string) []string {
	out := []string{term}
	switch {
	case strings.HasSuffix(term, "ies") && len(term) > 4:
		out = append(out, strings.TrimSuffix(term, "ies")+"y")
	case strings.HasSuffix(term, "es") && len(term) > 3:
		out = append(out, strings.TrimSuffix(term, "es"), strings.TrimSuffix(term, "s"))
	case strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") && len(term) > 3:
		out = append(out, strings.TrimSuffix(term, "s"))
	case strings.HasSuffix(term, "y") && len(term) > 2:
		out = append(out, strings.TrimSuffix(term, "y")+"ies", term+"s")
	default:
		out = append(out, term+"s", term+"es")
	}
	return out
}

// Matches reports whether term occurs in text. Matching is substring based,
// accepts singular/plural variants and treats hyphens and spaces as
// interchangeable ("wi-fi" matches "wi fi" and "wifi").
func Matches(text, term string) bool {
	nt := Normalize(text)
	nterm := Normalize(term)
	if nterm == "" {
		return false
	}
	compact := strings.ReplaceAll(nt, " ", "")
	for _, v := range Variants(nterm) {
		if strings.Contains(nt, v) {
			return true
		}
		if strings.Contains(compact, strings.ReplaceAll(v, " ", "")) {
			return true
		}
	}
	return false
}

// MatchCount returns how many of terms match text.
func MatchCount(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if Matches(text, t) {
			n++
		}
	}
	return n
}

// MatchRatio returns the fraction of terms that match text, or 0 when terms
// is empty.
func MatchRatio(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	return float64(MatchCount(text, terms)) / float64(len(terms))
}
