// Package route matches URL-like queries against parameterized route
// templates such as "[GET] api/users/{id}".
package route

import (
	"regexp"
	"strings"
)

// Scores returned by Score.
const (
	ExactScore   = 1.0
	SegmentScore = 0.8
)

const (
	catchAllMarker = "\x00CATCHALL\x00"
	paramMarker    = "\x00PARAM\x00"
)

var (
	verbTagRe  = regexp.MustCompile(`^\[[A-Za-z]+\]\s*`)
	catchAllRe = regexp.MustCompile(`\{\*{1,2}[^{}]*\}`)
	paramRe    = regexp.MustCompile(`\{[^{}*][^{}]*\}`)
)

var httpMethods = map[string]struct{}{
	"get":     {},
	"post":    {},
	"put":     {},
	"patch":   {},
	"delete":  {},
	"head":    {},
	"options": {},
}

// Matcher compiles and caches route templates. It is safe for
// concurrent use.
type Matcher struct {
	cache *patternCache
}

// NewMatcher creates a matcher whose cache holds up to capacity
// templates. A non-positive capacity selects DefaultCacheSize.
func NewMatcher(capacity int) *Matcher {
	return &Matcher{cache: newPatternCache(capacity)}
}

// IsMatch reports whether query matches template exactly or through
// right-aligned segment matching.
func (m *Matcher) IsMatch(template, query string) bool {
	return m.Score(template, query) > 0
}

// Score returns ExactScore for a full pattern match, SegmentScore for a
// segment fallback match and 0 otherwise.
func (m *Matcher) Score(template, query string) float64 {
	q := cleanQuery(query)
	if q == "" {
		return 0
	}

	r := m.compile(template)
	if r.cleaned == "" {
		return 0
	}
	if r.pattern != nil && r.pattern.MatchString(q) {
		return ExactScore
	}
	if segmentMatch(r.segments, strings.Split(q, "/")) {
		return SegmentScore
	}
	return 0
}

// Stats returns cache counters.
func (m *Matcher) Stats() CacheStats {
	return m.cache.snapshot()
}

// CacheLen returns the number of cached templates.
func (m *Matcher) CacheLen() int {
	return m.cache.len()
}

func (m *Matcher) compile(template string) *compiledRoute {
	if r, ok := m.cache.get(template); ok {
		return r
	}

	cleaned := CleanTemplate(template)
	r := &compiledRoute{
		template: template,
		cleaned:  cleaned,
		segments: strings.Split(cleaned, "/"),
	}
	if cleaned != "" {
		// A template that fails to compile still gets segment matching.
		r.pattern, _ = regexp.Compile(buildPattern(cleaned))
	}
	m.cache.put(r)
	return r
}

// CleanTemplate strips a leading "[VERB] " tag and surrounding slashes.
func CleanTemplate(template string) string {
	t := strings.TrimSpace(template)
	t = verbTagRe.ReplaceAllString(t, "")
	return strings.Trim(strings.TrimSpace(t), "/")
}

func cleanQuery(query string) string {
	return strings.Trim(strings.TrimSpace(query), "/")
}

func buildPattern(cleaned string) string {
	p := catchAllRe.ReplaceAllString(cleaned, catchAllMarker)
	p = paramRe.ReplaceAllString(p, paramMarker)
	p = regexp.QuoteMeta(p)
	p = strings.ReplaceAll(p, catchAllMarker, "(.*)")
	p = strings.ReplaceAll(p, paramMarker, "([^/]+)")
	return "(?i)^" + p + "$"
}

func isParamSegment(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// segmentMatch aligns query segments against the template from the
// right. Parameter segments match any non-empty value, the last segment
// may be a case-insensitive prefix, the rest must be equal ignoring case.
func segmentMatch(template, query []string) bool {
	if len(query) == 0 || len(query) > len(template) {
		return false
	}
	for i := 1; i <= len(query); i++ {
		t := template[len(template)-i]
		q := query[len(query)-i]
		if q == "" {
			return false
		}
		if isParamSegment(t) {
			continue
		}
		if i == 1 {
			if len(q) > len(t) || !strings.EqualFold(t[:len(q)], q) {
				return false
			}
			continue
		}
		if !strings.EqualFold(t, q) {
			return false
		}
	}
	return true
}

// IsPotentialURL reports whether query looks like a route: longer than
// two bytes, containing a slash, without whitespace and not only slashes.
func IsPotentialURL(query string) bool {
	q := strings.TrimSpace(query)
	if len(q) <= 2 || strings.Trim(q, "/") == "" {
		return false
	}
	if !strings.Contains(q, "/") {
		return false
	}
	return !strings.ContainsAny(q, " \t\r\n")
}

// StripMethod removes a leading HTTP method token ("get", "[POST]") from
// a query. The method is returned lowercased; it is empty when the query
// had none or when the remainder would not be URL-like.
func StripMethod(query string) (method, rest string) {
	q := strings.TrimSpace(query)
	head, tail, found := strings.Cut(q, " ")
	if !found {
		return "", q
	}
	token := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(head, "["), "]"))
	if _, ok := httpMethods[token]; !ok {
		return "", q
	}
	tail = strings.TrimSpace(tail)
	if !IsPotentialURL(tail) {
		return "", q
	}
	return token, tail
}
