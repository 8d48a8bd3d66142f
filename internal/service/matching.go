package service

import "strings"

const (
	substringMinLen  = 5
	similarityMinLen = 8
	similarityCutoff = 0.80
	// similarityEpsilon absorbs float rounding so a ratio of exactly 0.8
	// is not rejected.
	similarityEpsilon = 1e-9
)

// TitleMatches reports whether a remote title plausibly answers query. It
// accepts an exact case-insensitive match, containment in either direction
// for queries of at least 5 characters, or a normalized Levenshtein
// similarity of at least 0.80 for queries of at least 8 characters.
func TitleMatches(query, title string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(title))
	if q == "" || t == "" {
		return false
	}
	if q == t {
		return true
	}
	n := len([]rune(q))
	if n >= substringMinLen && (strings.Contains(t, q) || strings.Contains(q, t)) {
		return true
	}
	return n >= similarityMinLen && Similarity(q, t)+similarityEpsilon >= similarityCutoff
}

// Similarity is 1 - editDistance/max(len(a), len(b)) over runes. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance with two rolling rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
