package types

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ItemType is the closed set of searchable item kinds.
type ItemType uint8

const (
	ItemFile ItemType = iota
	ItemClass
	ItemInterface
	ItemEnum
	ItemFunction
	ItemMethod
	ItemProperty
	ItemVariable
	ItemText
	ItemCommand
	ItemEndpoint

	itemTypeCount
)

// NumItemTypes is the number of defined item types.
const NumItemTypes = int(itemTypeCount)

var itemTypeNames = [itemTypeCount]string{
	ItemFile:      "file",
	ItemClass:     "class",
	ItemInterface: "interface",
	ItemEnum:      "enum",
	ItemFunction:  "function",
	ItemMethod:    "method",
	ItemProperty:  "property",
	ItemVariable:  "variable",
	ItemText:      "text",
	ItemCommand:   "command",
	ItemEndpoint:  "endpoint",
}

// Every type belongs to exactly one non-EVERYTHING scope.
var itemTypeScopes = [itemTypeCount]Scope{
	ItemFile:      ScopeFiles,
	ItemClass:     ScopeTypes,
	ItemInterface: ScopeTypes,
	ItemEnum:      ScopeTypes,
	ItemFunction:  ScopeSymbols,
	ItemMethod:    ScopeSymbols,
	ItemVariable:  ScopeSymbols,
	ItemProperty:  ScopeProperties,
	ItemText:      ScopeText,
	ItemCommand:   ScopeCommands,
	ItemEndpoint:  ScopeEndpoints,
}

// Ranking multipliers applied after fuzzy scoring.
var itemTypeBoosts = [itemTypeCount]float64{
	ItemClass:     1.5,
	ItemInterface: 1.4,
	ItemEndpoint:  1.35,
	ItemMethod:    1.3,
	ItemFunction:  1.3,
	ItemEnum:      1.25,
	ItemProperty:  1.2,
	ItemVariable:  1.1,
	ItemCommand:   1.05,
	ItemFile:      1.0,
	ItemText:      0.9,
}

// Valid reports whether t is one of the defined item types.
func (t ItemType) Valid() bool {
	return t < itemTypeCount
}

func (t ItemType) String() string {
	if !t.Valid() {
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
	return itemTypeNames[t]
}

// Scope returns the category an item of this type is searched under.
func (t ItemType) Scope() Scope {
	if !t.Valid() {
		return ScopeEverything
	}
	return itemTypeScopes[t]
}

// Boost returns the ranking multiplier for the type.
func (t ItemType) Boost() float64 {
	if !t.Valid() {
		return 1.0
	}
	return itemTypeBoosts[t]
}

// ParseItemType converts a type name back to its ItemType.
func ParseItemType(s string) (ItemType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range itemTypeNames {
		if name == s {
			return ItemType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown item type %q", s)
}

func (t ItemType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid item type %d", t)
	}
	return []byte(itemTypeNames[t]), nil
}

func (t *ItemType) UnmarshalText(b []byte) error {
	parsed, err := ParseItemType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SearchableItem is one entry in the searchable corpus.
// Line and Column are 1-based; zero means unknown.
type SearchableItem struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             ItemType `json:"type"`
	FilePath         string   `json:"file_path"`
	RelativeFilePath string   `json:"relative_file_path,omitempty"`
	Line             int      `json:"line,omitempty"`
	Column           int      `json:"column,omitempty"`
	ContainerName    string   `json:"container_name,omitempty"`
	FullName         string   `json:"full_name,omitempty"`
	Detail           string   `json:"detail,omitempty"`
	Size             int64    `json:"size,omitempty"`
}

// FileItemID returns the corpus ID of the file item for path.
func FileItemID(path string) string {
	return "file:" + filepath.ToSlash(path)
}

// SymbolItemID returns a stable ID for a symbol declared in path.
func SymbolItemID(t ItemType, path, name string, line, column int) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", t, filepath.ToSlash(path), name, line, column)
}

// TextItemID returns the ID for a text match.
func TextItemID(path string, line, column int) string {
	return fmt.Sprintf("text:%s:%d:%d", filepath.ToSlash(path), line, column)
}

// NewFileItem builds the file item for path. relPath may be empty.
func NewFileItem(path, relPath string, size int64) SearchableItem {
	detail := filepath.Dir(relPath)
	if relPath == "" || detail == "." {
		detail = ""
	}
	return SearchableItem{
		ID:               FileItemID(path),
		Name:             filepath.Base(path),
		Type:             ItemFile,
		FilePath:         path,
		RelativeFilePath: relPath,
		Detail:           filepath.ToSlash(detail),
		Size:             size,
	}
}
