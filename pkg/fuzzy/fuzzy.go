// Package fuzzy does typo-tolerant matching for inbox searches.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Distance is the Levenshtein edit distance between two already-normalized strings.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Threshold is the edit budget allowed for a query of this length.
func Threshold(query string) int {
	n := len([]rune(query))
	switch {
	case n <= 3:
		return 0
	case n >= 8:
		return 2
	default:
		return 1
	}
}

// Match reports whether query appears in text, either as a substring, as a
// word prefix, or as a word within the query's edit budget.
func Match(query, text string) bool {
	query = Normalize(query)
	text = Normalize(text)
	if query == "" {
		return true
	}
	if strings.Contains(text, query) {
		return true
	}

	threshold := Threshold(query)
	for _, word := range strings.FieldsFunc(text, isSeparator) {
		if strings.HasPrefix(word, query) {
			return true
		}
		if threshold > 0 && Distance(query, word) <= threshold {
			return true
		}
	}
	return false
}

// MatchAny reports whether query matches any of the fields.
func MatchAny(query string, fields ...string) bool {
	for _, f := range fields {
		if Match(query, f) {
			return true
		}
	}
	return false
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err == nil {
		s = folded
	}
	s = strings.ReplaceAll(strings.ToLower(s), "đ", "d")
	return strings.Join(strings.Fields(s), " ")
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '<' || r == '>' || r == ',' || r == '"'
}
