package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Field weights: a name match counts fully, full names and paths less.
const (
	nameWeight     = 1.0
	fullNameWeight = 0.9
	pathWeight     = 0.8
)

const (
	// minFuzzyScore is the floor below which a field does not match.
	minFuzzyScore = 0.01
	// weakMatchScore separates contiguous matches from scattered
	// subsequence and typo hits. Only weak matches compete with the
	// acronym tier.
	weakMatchScore = 0.5

	acronymWeight      = 0.8
	acronymStartFactor = 1.5

	typoMinQueryLen   = 4
	typoMinSimilarity = 0.88
	typoWeight        = 0.4

	// personalizationFloor keeps activity from resurrecting non-matches.
	personalizationFloor = 0.05
)

// preparedKey is a searchable string with its lowercase form. Keys are
// interned, so identical strings share one key.
type preparedKey struct {
	text  string
	lower string
	mask  uint64
}

func newPreparedKey(s string) *preparedKey {
	lower := strings.ToLower(s)
	return &preparedKey{text: s, lower: lower, mask: charMask(lower)}
}

// preparedQuery is computed once per query.
type preparedQuery struct {
	raw   string
	lower string
	upper string
	mask  uint64

	// route is the query with any leading HTTP method removed.
	route string
	isURL bool
}

// fuzzyScore rates how well q matches key in [0, 1]. Exact matches score
// 1, prefixes at least 0.75, substrings at least 0.5 and subsequences
// below 0.45.
func fuzzyScore(q *preparedQuery, key *preparedKey, typo bool) float64 {
	if key == nil || q.lower == "" {
		return 0
	}
	query, target := q.lower, key.lower
	n, m := len(query), len(target)

	if n <= m {
		if query == target {
			return 1.0
		}
		ratio := float64(n) / float64(m)
		if strings.HasPrefix(target, query) {
			return 0.75 + 0.2*ratio
		}
		if idx := strings.Index(target, query); idx >= 0 {
			if isWordStart(key.text, key.lower, idx) {
				return 0.6 + 0.2*ratio
			}
			return 0.5 + 0.2*ratio
		}
		if s := subsequenceScore(query, key); s > 0 {
			return s
		}
	}

	if typo && utf8.RuneCountInString(query) >= typoMinQueryLen {
		return typoScore(query, target)
	}
	return 0
}

// subsequenceScore walks target greedily. Matches on word starts and
// consecutive runs raise the quality of the match.
func subsequenceScore(query string, key *preparedKey) float64 {
	target := key.lower
	qi, last := 0, -2
	var wordStarts, consecutive int
	for ti := 0; ti < len(target) && qi < len(query); ti++ {
		if target[ti] != query[qi] {
			continue
		}
		if isWordStart(key.text, key.lower, ti) {
			wordStarts++
		}
		if ti == last+1 {
			consecutive++
		}
		last = ti
		qi++
	}
	if qi < len(query) {
		return 0
	}

	n := float64(len(query))
	quality := (float64(wordStarts) + float64(consecutive)) / (2 * n)
	ratio := n / float64(len(target))
	return 0.1 + 0.25*quality + 0.1*ratio
}

func typoScore(query, target string) float64 {
	// Compare against a window of the target no longer than the query
	// plus two, so short queries can still hit long names.
	window := target
	if limit := len(query) + 2; len(window) > limit {
		window = window[:limit]
	}
	sim, err := edlib.StringsSimilarity(query, window, edlib.JaroWinkler)
	if err != nil || float64(sim) < typoMinSimilarity {
		return 0
	}
	return float64(sim) * typoWeight
}

// isWordStart reports whether position i of the original text begins a
// word: the start of the string, after a separator, or a camelCase hump.
func isWordStart(text, lower string, i int) bool {
	if i == 0 {
		return true
	}
	if len(text) != len(lower) || i >= len(text) {
		return false
	}
	prev, cur := text[i-1], text[i]
	switch prev {
	case '_', '-', '.', '/', '\\', ' ', ':', '$', '@':
		return true
	}
	if isUpperASCII(cur) && !isUpperASCII(prev) {
		return true
	}
	return isDigitASCII(cur) != isDigitASCII(prev)
}

func isUpperASCII(b byte) bool { return b >= 'A' && b <= 'Z' }
func isDigitASCII(b byte) bool { return b >= '0' && b <= '9' }

// capitalsOf returns the uppercased first letter followed by every
// internal capital: "getUserById" -> "GUBI".
func capitalsOf(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// acronymScore matches an uppercased query inside a capitals signature.
func acronymScore(upperQuery, capitals string) float64 {
	if upperQuery == "" || capitals == "" || len(upperQuery) > len(capitals) {
		return 0
	}
	idx := strings.Index(capitals, upperQuery)
	if idx < 0 {
		return 0
	}
	score := float64(len(upperQuery)) / float64(len(capitals))
	if idx == 0 {
		score *= acronymStartFactor
	}
	return score * acronymWeight
}

// blendPersonalization mixes an activity score into a match score.
func blendPersonalization(score, activity, weight float64) float64 {
	if score <= personalizationFloor || weight <= 0 {
		return score
	}
	return score*(1-weight) + activity*weight
}
