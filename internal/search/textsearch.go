package search

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/types"
)

const (
	textChunkSize   = 64 * 1024
	maxTextLineLen  = 240
	exactCaseScore  = 1.0
	foldedCaseScore = 0.8
)

// TextMatch is one literal hit reported by a LiteralSearcher. Line and
// Column are 1-based; Column counts bytes.
type TextMatch struct {
	Path   string
	Line   int
	Column int
	Text   string
}

// LiteralSearcher is an external literal text search tool.
type LiteralSearcher interface {
	Search(ctx context.Context, query string, files []string, maxResults int) ([]TextMatch, error)
}

type textFile struct {
	path string
	rel  string
}

func (e *Engine) searchText(ctx context.Context, pq parsedQuery, maxResults int) ([]types.SearchResult, error) {
	e.mu.RLock()
	files := make([]textFile, 0, len(e.scopes[types.ScopeFiles]))
	for _, idx := range e.scopes[types.ScopeFiles] {
		item := &e.cols.items[idx]
		files = append(files, textFile{path: item.FilePath, rel: item.RelativeFilePath})
	}
	literal := e.literal
	e.mu.RUnlock()

	limit := min(maxResults, e.opts.MaxTextResults)

	if literal != nil {
		paths := make([]string, len(files))
		rels := make(map[string]string, len(files))
		for i, f := range files {
			paths[i] = f.path
			rels[f.path] = f.rel
		}
		matches, err := literal.Search(ctx, pq.text, paths, limit)
		if err == nil {
			out := make([]types.SearchResult, 0, len(matches))
			for _, m := range matches {
				out = append(out, textResult(m.Path, rels[m.Path], m.Line, m.Column-1, m.Text, pq.text))
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, findallerrors.ErrCancelled
		}
		e.logger.Warn("literal search failed, scanning files", "error", err)
	}

	return scanFiles(ctx, files, pq.text, limit, e.opts.MaxTextFileSize, e.logger.Debug)
}

func scanFiles(ctx context.Context, files []textFile, query string, limit int, maxSize int64, logf func(string, ...any)) ([]types.SearchResult, error) {
	needle := lowerASCII([]byte(query))
	var out []types.SearchResult
	for _, f := range files {
		if ctx.Err() != nil {
			return out, findallerrors.ErrCancelled
		}
		info, err := os.Stat(f.path)
		if err != nil || info.IsDir() || info.Size() > maxSize {
			continue
		}
		n := len(out)
		out, err = scanFile(f, query, needle, limit, out)
		if err != nil {
			logf("text scan failed", "path", f.path, "error", err)
			out = out[:n]
			continue
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// scanFile appends matches from one file. Lines spanning a chunk
// boundary are carried into the next read; binary files are skipped.
func scanFile(f textFile, query string, needle []byte, limit int, out []types.SearchResult) ([]types.SearchResult, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return out, err
	}
	defer fh.Close()

	buf := make([]byte, textChunkSize)
	var carry []byte
	line := 0
	first := true

	for {
		n, readErr := fh.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if first {
				if bytes.IndexByte(chunk, 0) >= 0 {
					return out, nil
				}
				first = false
			}
			data := append(carry, chunk...)
			start := 0
			for {
				nl := bytes.IndexByte(data[start:], '\n')
				if nl < 0 {
					break
				}
				line++
				out = matchLine(f, data[start:start+nl], line, query, needle, out)
				if len(out) >= limit {
					return out, nil
				}
				start += nl + 1
			}
			carry = append(carry[:0:0], data[start:]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return out, readErr
		}
	}
	if len(carry) > 0 {
		line++
		out = matchLine(f, carry, line, query, needle, out)
	}
	return out, nil
}

func matchLine(f textFile, raw []byte, line int, query string, needle []byte, out []types.SearchResult) []types.SearchResult {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	col := bytes.Index(lowerASCII(raw), needle)
	if col < 0 {
		return out
	}
	return append(out, textResult(f.path, f.rel, line, col, string(raw), query))
}

// textResult builds a text item for a match at byte offset col of
// lineText. The stored line is trimmed and capped; the highlight is
// re-based onto the trimmed text.
func textResult(path, rel string, line, col int, lineText, query string) types.SearchResult {
	trimmed := strings.TrimLeft(lineText, " \t")
	lead := len(lineText) - len(trimmed)
	trimmed = strings.TrimRight(trimmed, " \t\r\n")

	start := max(col-lead, 0)
	end := start + len(query)
	if end > len(trimmed) {
		end = len(trimmed)
	}

	score := foldedCaseScore
	if start < end && trimmed[start:end] == query {
		score = exactCaseScore
	}

	name := trimmed
	if len(name) > maxTextLineLen {
		name = truncateUTF8(name, maxTextLineLen)
	}
	var highlights []types.Span
	if start < len(name) {
		highlights = []types.Span{{Start: start, End: min(end, len(name))}}
	}

	item := types.SearchableItem{
		ID:               types.TextItemID(path, line, col+1),
		Name:             name,
		Type:             types.ItemText,
		FilePath:         path,
		RelativeFilePath: rel,
		Line:             line,
		Column:           col + 1,
		Detail:           rel,
	}
	return types.SearchResult{
		Item:       item,
		Score:      score * types.ItemText.Boost(),
		Highlights: highlights,
		Scope:      types.ScopeText,
	}
}

// lowerASCII folds only ASCII letters so byte offsets stay aligned with
// the original text.
func lowerASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
