package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreRules evaluates .gitignore patterns without invoking git. It
// serves the walk fallback when no repository is available; inside a
// repository git itself answers ignore queries.
type GitignoreRules struct {
	rules []gitignoreRule
}

type gitignoreRule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// NewGitignoreRules creates an empty rule set
func NewGitignoreRules() *GitignoreRules {
	return &GitignoreRules{}
}

// LoadGitignore reads root/.gitignore. A missing file is not an error.
func (g *GitignoreRules) LoadGitignore(root string) error {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return g.Read(f)
}

// Read parses gitignore lines from r.
func (g *GitignoreRules) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		g.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// AddPattern parses a single gitignore line. Blank lines and comments are
// ignored.
func (g *GitignoreRules) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	rule := gitignoreRule{}
	if strings.HasPrefix(line, "!") {
		rule.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	// A slash anywhere but the end anchors the pattern to the root.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return
	}
	if anchored {
		rule.glob = line
	} else {
		rule.glob = "**/" + line
	}
	g.rules = append(g.rules, rule)
}

// ShouldIgnore reports whether the slash-separated path relative to the
// root is ignored. Later rules win, as in git.
func (g *GitignoreRules) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")
	ignored := false
	for _, r := range g.rules {
		if r.matches(relPath, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r gitignoreRule) matches(path string, isDir bool) bool {
	if (!r.dirOnly || isDir) && matchGlob(r.glob, path) {
		return true
	}
	// Anything beneath an ignored directory is ignored too.
	return matchGlob(r.glob+"/**", path)
}

// ExclusionPatterns converts the non-negated rules into exclusion globs.
func (g *GitignoreRules) ExclusionPatterns() []string {
	var out []string
	for _, r := range g.rules {
		if r.negate {
			continue
		}
		if r.dirOnly {
			out = append(out, r.glob+"/**")
		} else {
			out = append(out, r.glob, r.glob+"/**")
		}
	}
	return DeduplicatePatterns(out)
}

func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
