// Package relevance implements the title-relevance filter of §4.H: a
// token-overlap check distinct from whole-string similarity scoring, used to
// reject indexer results whose titles don't plausibly match the query.
package relevance

import (
	"regexp"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "is": true,
	"it": true,
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
var whitespace = regexp.MustCompile(`\s+`)

// normalize lowercases, strips punctuation, collapses whitespace and tokenizes.
func normalize(title string) []string {
	lower := strings.ToLower(title)
	stripped := nonWord.ReplaceAllString(lower, " ")
	collapsed := whitespace.ReplaceAllString(stripped, " ")
	return strings.Fields(collapsed)
}

// significantTokens drops stop words and single-character tokens.
func significantTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) <= 1 {
			continue
		}
		if stopWords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// threshold returns the required match fraction for a query of K significant
// tokens: K<=2 requires an exact match, K>2 tolerates partial overlap.
func threshold(k int) float64 {
	if k <= 2 {
		return 1.0
	}
	return 0.6
}

// Matches reports whether candidateTitle is relevant to the search query,
// given an optional imdbID that, if present in candidateTitle, accepts
// unconditionally. If the query's significant tokens are all stop words, the
// filter disables itself and accepts everything.
func Matches(query, candidateTitle, imdbID string) bool {
	if imdbID != "" && strings.Contains(strings.ToLower(candidateTitle), strings.ToLower(imdbID)) {
		return true
	}

	queryTokens := significantTokens(normalize(query))
	if len(queryTokens) == 0 {
		return true
	}

	candidateTokens := normalize(candidateTitle)
	candidateSet := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		candidateSet[t] = true
	}

	matched := 0
	for _, t := range queryTokens {
		if candidateSet[t] {
			matched++
		}
	}

	k := len(queryTokens)
	required := requiredMatches(k, threshold(k))
	return matched >= required
}

// requiredMatches rounds up k*threshold to the nearest whole-word match count.
func requiredMatches(k int, thresh float64) int {
	f := float64(k) * thresh
	i := int(f)
	if f > float64(i) {
		i++
	}
	if i < 1 {
		i = 1
	}
	return i
}
