package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads dir/.findall.kdl. It returns nil, nil when the file does
// not exist. Relative roots resolve against dir; a missing root falls back
// to defaultRoot.
func LoadKDL(dir, defaultRoot string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadKDLFile(path, defaultRoot)
}

// LoadKDLFile parses an explicit config file.
func LoadKDLFile(path, defaultRoot string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := ParseKDL(string(content), defaultRoot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Project.Root != defaultRoot && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(filepath.Dir(path), cfg.Project.Root))
	}
	return cfg, nil
}

// ParseKDL applies a KDL document over the defaults for defaultRoot.
func ParseKDL(content, defaultRoot string) (*Config, error) {
	cfg := Default(defaultRoot)

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			parseIndexSection(cfg, n.Children)
		case "performance":
			parsePerformanceSection(cfg, n.Children)
		case "search":
			parseSearchSection(cfg, n.Children)
		case "activity":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					setBool(cn, &cfg.Activity.Enabled)
				case "save_interval_sec":
					setInt(cn, &cfg.Activity.SaveIntervalSec)
				case "retention_days":
					setInt(cn, &cfg.Activity.RetentionDays)
				case "max_items":
					setInt(cn, &cfg.Activity.MaxItems)
				}
			}
		case "storage":
			for _, cn := range n.Children {
				assignSimpleString(cn, "backend", func(v string) { cfg.Storage.Backend = strings.ToLower(v) })
				assignSimpleString(cn, "path", func(v string) { cfg.Storage.Path = v })
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// An exclude block replaces the defaults.
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func parseIndexSection(cfg *Config, nodes []*document.Node) {
	for _, cn := range nodes {
		switch nodeName(cn) {
		case "max_file_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileSize = int64(v)
			}
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Index.MaxFileSize = sz
				}
			}
		case "max_file_count":
			setInt(cn, &cfg.Index.MaxFileCount)
		case "follow_symlinks":
			setBool(cn, &cfg.Index.FollowSymlinks)
		case "respect_gitignore":
			setBool(cn, &cfg.Index.RespectGitignore)
		case "use_vcs":
			setBool(cn, &cfg.Index.UseVCS)
		case "skip_generated":
			setBool(cn, &cfg.Index.SkipGenerated)
		case "watch_mode":
			setBool(cn, &cfg.Index.WatchMode)
		case "watch_debounce_ms":
			setInt(cn, &cfg.Index.WatchDebounceMs)
		case "batch_size":
			setInt(cn, &cfg.Index.BatchSize)
		case "cooldown_ms":
			setInt(cn, &cfg.Index.CooldownMs)
		case "ignore_check_debounce_ms":
			setInt(cn, &cfg.Index.IgnoreCheckDebounceMs)
		case "reextract_per_second":
			setFloat(cn, &cfg.Index.ReextractPerSecond)
		}
	}
}

func parsePerformanceSection(cfg *Config, nodes []*document.Node) {
	for _, cn := range nodes {
		switch nodeName(cn) {
		case "parallel_file_workers":
			setInt(cn, &cfg.Performance.ParallelFileWorkers)
		case "max_concurrent_file_ops":
			setInt(cn, &cfg.Performance.MaxConcurrentFileOps)
		case "indexing_timeout_sec":
			setInt(cn, &cfg.Performance.IndexingTimeoutSec)
		case "startup_delay_ms":
			setInt(cn, &cfg.Performance.StartupDelayMs)
		}
	}
}

func parseSearchSection(cfg *Config, nodes []*document.Node) {
	for _, cn := range nodes {
		switch nodeName(cn) {
		case "max_results":
			setInt(cn, &cfg.Search.MaxResults)
		case "enable_acronym":
			setBool(cn, &cfg.Search.EnableAcronym)
		case "typo_tolerance":
			setBool(cn, &cfg.Search.TypoTolerance)
		case "char_mask_prefilter":
			setBool(cn, &cfg.Search.CharMaskPrefilter)
		case "personalization_weight":
			setFloat(cn, &cfg.Search.PersonalizationWeight)
		case "max_text_file_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.MaxTextFileSize = int64(v)
			}
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Search.MaxTextFileSize = sz
				}
			}
		case "max_text_results":
			setInt(cn, &cfg.Search.MaxTextResults)
		case "route_cache_size":
			setInt(cn, &cfg.Search.RouteCacheSize)
		}
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func setInt(n *document.Node, dst *int) {
	if v, ok := firstIntArg(n); ok {
		*dst = v
	}
}

func setBool(n *document.Node, dst *bool) {
	if v, ok := firstBoolArg(n); ok {
		*dst = v
	}
}

func setFloat(n *document.Node, dst *float64) {
	if v, ok := firstFloatArg(n); ok {
		*dst = v
	}
}

// collectStringArgs reads inline arguments (exclude "a" "b") or, when
// there are none, a block of child nodes (exclude { "a"; "b" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}
