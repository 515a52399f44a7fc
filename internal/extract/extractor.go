// Package extract turns source files into searchable declarations using
// tree-sitter grammars, plus a pattern pass that recognizes HTTP route
// registrations as endpoints.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/types"
)

const (
	// DefaultMaxFileSize bounds the files handed to a grammar.
	DefaultMaxFileSize = 2 * 1024 * 1024

	maxDetailLen = 120
)

// Options configures an Extractor.
type Options struct {
	MaxFileSize int64
	// Endpoints enables the route registration pass.
	Endpoints bool
}

func DefaultOptions() Options {
	return Options{MaxFileSize: DefaultMaxFileSize, Endpoints: true}
}

// Extractor parses files into declarations. Parsers are not safe for
// concurrent use; each worker owns its own Extractor.
type Extractor struct {
	opts    Options
	logger  *slog.Logger
	runtime map[string]*grammarRuntime // by extension
	all     []*grammarRuntime
}

type grammarRuntime struct {
	lang    *language
	parser  *tree_sitter.Parser
	queries []*tree_sitter.Query
}

func New(opts Options, logger *slog.Logger) *Extractor {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Extractor{
		opts:    opts,
		logger:  debug.OrDiscard(logger).With("component", "extract"),
		runtime: make(map[string]*grammarRuntime),
	}
}

// Init creates a parser and compiles the patterns of every language.
// Languages whose grammar cannot be loaded are skipped; Init fails only
// when none are usable.
func (e *Extractor) Init() error {
	if len(e.all) > 0 {
		return nil
	}
	for i := range languages {
		lang := &languages[i]
		rt, err := newGrammarRuntime(lang, e.logger)
		if err != nil {
			e.logger.Warn("language unavailable", "language", lang.name, "error", err)
			continue
		}
		e.all = append(e.all, rt)
		for _, ext := range lang.extensions {
			e.runtime[ext] = rt
		}
	}
	if len(e.all) == 0 {
		return errors.New("no tree-sitter grammar could be loaded")
	}
	return nil
}

func newGrammarRuntime(lang *language, logger *slog.Logger) (*grammarRuntime, error) {
	grammar := tree_sitter.NewLanguage(lang.grammar())
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(grammar); err != nil {
		parser.Close()
		return nil, err
	}

	rt := &grammarRuntime{lang: lang, parser: parser}
	for _, pattern := range lang.patterns {
		// The binding can return a typed nil error; the query is what counts.
		query, qerr := tree_sitter.NewQuery(grammar, pattern)
		if query == nil {
			logger.Debug("pattern rejected", "language", lang.name, "pattern", pattern, "error", qerr)
			continue
		}
		rt.queries = append(rt.queries, query)
	}
	if len(rt.queries) == 0 {
		parser.Close()
		return nil, fmt.Errorf("no usable patterns for %s", lang.name)
	}
	return rt, nil
}

// Close releases the parsers and compiled queries.
func (e *Extractor) Close() {
	for _, rt := range e.all {
		for _, q := range rt.queries {
			q.Close()
		}
		rt.parser.Close()
	}
	e.all = nil
	e.runtime = make(map[string]*grammarRuntime)
}

// Supports reports whether path has a grammar or endpoint patterns.
func (e *Extractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := e.runtime[ext]; ok {
		return true
	}
	return e.opts.Endpoints && endpointExtensions[ext]
}

// ParseFile returns the declarations in path. Unreadable, oversized or
// unsupported files yield no items.
func (e *Extractor) ParseFile(path string) []types.SearchableItem {
	if !e.Supports(path) {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() > e.opts.MaxFileSize {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		e.logger.Debug("read failed", "path", path, "error", err)
		return nil
	}
	return e.ParseContent(path, content)
}

// ParseContent extracts declarations from content as if read from path.
func (e *Extractor) ParseContent(path string, content []byte) []types.SearchableItem {
	ext := strings.ToLower(filepath.Ext(path))

	var items []types.SearchableItem
	if rt, ok := e.runtime[ext]; ok {
		items = rt.extract(path, content)
	}
	if e.opts.Endpoints && endpointExtensions[ext] {
		items = append(items, extractEndpoints(path, content)...)
	}
	return items
}

// candidate is a declaration before deduplication. Several patterns can
// capture the same identifier (a const arrow function is both a variable
// and a function); the highest priority wins.
type candidate struct {
	item     types.SearchableItem
	priority int
}

func priority(t types.ItemType) int {
	switch t {
	case types.ItemClass, types.ItemInterface, types.ItemEnum:
		return 3
	case types.ItemFunction, types.ItemMethod:
		return 2
	case types.ItemProperty:
		return 1
	}
	return 0
}

func (rt *grammarRuntime) extract(path string, content []byte) []types.SearchableItem {
	tree := rt.parser.Parse(content, nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()
	root := tree.RootNode()

	byName := make(map[uint]candidate)
	var order []uint

	for _, query := range rt.queries {
		names := query.CaptureNames()
		qc := tree_sitter.NewQueryCursor()
		matches := qc.Matches(query, root, content)

		for match := matches.Next(); match != nil; match = matches.Next() {
			var decl, name, receiver *tree_sitter.Node
			var kind string
			for i := range match.Captures {
				c := &match.Captures[i]
				capture := names[c.Index]
				switch {
				case strings.HasSuffix(capture, ".name"):
					name = &c.Node
				case strings.HasSuffix(capture, ".receiver"):
					receiver = &c.Node
				default:
					decl = &c.Node
					kind = capture
				}
			}
			if decl == nil || name == nil {
				continue
			}
			typ, err := types.ParseItemType(kind)
			if err != nil {
				continue
			}

			item := buildItem(path, content, typ, decl, name, receiver)
			if item.Name == "" {
				continue
			}
			key := name.StartByte()
			prev, seen := byName[key]
			if !seen {
				order = append(order, key)
			}
			if !seen || priority(item.Type) > prev.priority {
				byName[key] = candidate{item: item, priority: priority(item.Type)}
			}
		}
		qc.Close()
	}

	items := make([]types.SearchableItem, 0, len(order))
	for _, key := range order {
		items = append(items, byName[key].item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Line != items[j].Line {
			return items[i].Line < items[j].Line
		}
		return items[i].Column < items[j].Column
	})
	return items
}

func buildItem(path string, content []byte, typ types.ItemType, decl, name, receiver *tree_sitter.Node) types.SearchableItem {
	text := nodeText(name, content)
	pos := name.StartPosition()
	line, col := int(pos.Row)+1, int(pos.Column)+1

	var container string
	if receiver != nil {
		container = receiverType(nodeText(receiver, content))
	} else {
		container = containerName(name, decl, content)
	}
	if typ == types.ItemFunction && container != "" {
		typ = types.ItemMethod
	}

	item := types.SearchableItem{
		ID:            types.SymbolItemID(typ, path, text, line, col),
		Name:          text,
		Type:          typ,
		FilePath:      path,
		Line:          line,
		Column:        col,
		ContainerName: container,
		Detail:        firstLine(nodeText(decl, content)),
	}
	if container != "" {
		item.FullName = container + "." + text
	}
	return item
}

// containerName finds the enclosing type of a declaration: a qualified
// C++ name's scope, or the nearest ancestor that is a type declaration.
func containerName(name, decl *tree_sitter.Node, content []byte) string {
	if parent := name.Parent(); parent != nil && parent.Kind() == "qualified_identifier" {
		if scope := parent.ChildByFieldName("scope"); scope != nil {
			return nodeText(scope, content)
		}
	}
	for n := decl.Parent(); n != nil; n = n.Parent() {
		field, ok := containerKinds[n.Kind()]
		if !ok {
			continue
		}
		if nameNode := n.ChildByFieldName(field); nameNode != nil {
			return stripGenerics(nodeText(nameNode, content))
		}
	}
	return ""
}

// receiverType reduces a Go receiver list like "(s *Store[K])" to "Store".
func receiverType(list string) string {
	list = strings.Trim(strings.TrimSpace(list), "()")
	fields := strings.Fields(list)
	if len(fields) == 0 {
		return ""
	}
	return stripGenerics(strings.TrimLeft(fields[len(fields)-1], "*"))
}

func stripGenerics(s string) string {
	if i := strings.IndexAny(s, "<["); i > 0 {
		return s[:i]
	}
	return s
}

func nodeText(n *tree_sitter.Node, content []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(content)) || start > end {
		return ""
	}
	return string(content[start:end])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxDetailLen {
		cut := maxDetailLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut]) + "…"
	}
	return s
}
