package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope restricts a query to one category of items.
type Scope uint8

const (
	ScopeEverything Scope = iota
	ScopeFiles
	ScopeTypes
	ScopeSymbols
	ScopeProperties
	ScopeText
	ScopeCommands
	ScopeEndpoints

	scopeCount
)

// NumScopes is the number of defined scopes, EVERYTHING included.
const NumScopes = int(scopeCount)

var scopeNames = [scopeCount]string{
	ScopeEverything: "everything",
	ScopeFiles:      "files",
	ScopeTypes:      "types",
	ScopeSymbols:    "symbols",
	ScopeProperties: "properties",
	ScopeText:       "text",
	ScopeCommands:   "commands",
	ScopeEndpoints:  "endpoints",
}

func (s Scope) Valid() bool {
	return s < scopeCount
}

func (s Scope) String() string {
	if !s.Valid() {
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return scopeNames[s]
}

// ParseScope accepts scope names case-insensitively. The empty string
// means everything.
func ParseScope(s string) (Scope, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return ScopeEverything, nil
	}
	for i, name := range scopeNames {
		if name == s {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scope %q", s)
}

func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", s)
	}
	return []byte(scopeNames[s]), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	parsed, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Span is a half-open byte range [Start, End) within an item's name.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchResult is one ranked hit returned to callers.
type SearchResult struct {
	Item       SearchableItem `json:"item"`
	Score      float64        `json:"score"`
	Highlights []Span         `json:"highlights,omitempty"`
	Scope      Scope          `json:"scope"`
}

// IndexStats is the per-category corpus breakdown.
type IndexStats struct {
	Files      int `json:"files"`
	Types      int `json:"types"`
	Symbols    int `json:"symbols"`
	Properties int `json:"properties"`
	Endpoints  int `json:"endpoints"`
	Text       int `json:"text"`
	Commands   int `json:"commands"`
	Total      int `json:"total"`
}
