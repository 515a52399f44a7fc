package search

import (
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/standardbeagle/findall/internal/types"
)

// highlightSpans returns the matched byte ranges of query within name,
// merged into contiguous spans. Names the query does not fuzzily match
// get no highlights.
func highlightSpans(query, name string) []types.Span {
	if query == "" || name == "" {
		return nil
	}
	matches := fuzzy.Find(query, []string{name})
	if len(matches) == 0 {
		return nil
	}

	var spans []types.Span
	for _, idx := range matches[0].MatchedIndexes {
		if idx < 0 || idx >= len(name) {
			continue
		}
		_, size := utf8.DecodeRuneInString(name[idx:])
		end := idx + size
		if n := len(spans); n > 0 && spans[n-1].End == idx {
			spans[n-1].End = end
			continue
		}
		spans = append(spans, types.Span{Start: idx, End: end})
	}
	return spans
}
