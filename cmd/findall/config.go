package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/findall/internal/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "kdl or table",
						Value: "kdl",
					},
				},
				Action: configShowCommand,
			},
		},
	}
}

func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	switch c.String("format") {
	case "table":
		return displayConfigTable(c.App.Writer, cfg)
	case "kdl", "":
		_, err := io.WriteString(c.App.Writer, configToKDL(cfg))
		return err
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}
}

// configToKDL renders cfg in the syntax config.ParseKDL reads.
func configToKDL(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("// Effective findall configuration\n\n")

	section(&b, "project",
		kv("name", quote(cfg.Project.Name)),
		kv("root", quote(cfg.Project.Root)),
	)
	section(&b, "index",
		kv("max_file_size", strconv.FormatInt(cfg.Index.MaxFileSize, 10)),
		kv("max_file_count", strconv.Itoa(cfg.Index.MaxFileCount)),
		kv("follow_symlinks", strconv.FormatBool(cfg.Index.FollowSymlinks)),
		kv("respect_gitignore", strconv.FormatBool(cfg.Index.RespectGitignore)),
		kv("use_vcs", strconv.FormatBool(cfg.Index.UseVCS)),
		kv("skip_generated", strconv.FormatBool(cfg.Index.SkipGenerated)),
		kv("watch_mode", strconv.FormatBool(cfg.Index.WatchMode)),
		kv("watch_debounce_ms", strconv.Itoa(cfg.Index.WatchDebounceMs)),
		kv("batch_size", strconv.Itoa(cfg.Index.BatchSize)),
		kv("cooldown_ms", strconv.Itoa(cfg.Index.CooldownMs)),
		kv("ignore_check_debounce_ms", strconv.Itoa(cfg.Index.IgnoreCheckDebounceMs)),
		kv("reextract_per_second", formatFloat(cfg.Index.ReextractPerSecond)),
	)
	section(&b, "performance",
		kv("parallel_file_workers", strconv.Itoa(cfg.Performance.ParallelFileWorkers)),
		kv("max_concurrent_file_ops", strconv.Itoa(cfg.Performance.MaxConcurrentFileOps)),
		kv("indexing_timeout_sec", strconv.Itoa(cfg.Performance.IndexingTimeoutSec)),
		kv("startup_delay_ms", strconv.Itoa(cfg.Performance.StartupDelayMs)),
	)
	section(&b, "search",
		kv("max_results", strconv.Itoa(cfg.Search.MaxResults)),
		kv("enable_acronym", strconv.FormatBool(cfg.Search.EnableAcronym)),
		kv("typo_tolerance", strconv.FormatBool(cfg.Search.TypoTolerance)),
		kv("char_mask_prefilter", strconv.FormatBool(cfg.Search.CharMaskPrefilter)),
		kv("personalization_weight", formatFloat(cfg.Search.PersonalizationWeight)),
		kv("max_text_file_size", strconv.FormatInt(cfg.Search.MaxTextFileSize, 10)),
		kv("max_text_results", strconv.Itoa(cfg.Search.MaxTextResults)),
		kv("route_cache_size", strconv.Itoa(cfg.Search.RouteCacheSize)),
	)
	section(&b, "activity",
		kv("enabled", strconv.FormatBool(cfg.Activity.Enabled)),
		kv("save_interval_sec", strconv.Itoa(cfg.Activity.SaveIntervalSec)),
		kv("retention_days", strconv.Itoa(cfg.Activity.RetentionDays)),
		kv("max_items", strconv.Itoa(cfg.Activity.MaxItems)),
	)
	section(&b, "storage",
		kv("backend", quote(cfg.Storage.Backend)),
		kv("path", quote(cfg.Storage.Path)),
	)

	patterns(&b, "include", cfg.Include)
	patterns(&b, "exclude", cfg.Exclude)
	return b.String()
}

func kv(key, value string) string { return key + " " + value }

func quote(s string) string { return strconv.Quote(s) }

// formatFloat always keeps a decimal point so KDL reads a float back.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func section(b *strings.Builder, name string, lines ...string) {
	b.WriteString(name + " {\n")
	for _, l := range lines {
		b.WriteString("    " + l + "\n")
	}
	b.WriteString("}\n\n")
}

func patterns(b *strings.Builder, name string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(name)
	for _, item := range items {
		b.WriteString(" " + quote(item))
	}
	b.WriteString("\n")
}

func displayConfigTable(out io.Writer, cfg *config.Config) error {
	fmt.Fprintf(out, "findall Configuration\n")
	fmt.Fprintf(out, "=====================\n\n")

	fmt.Fprintf(out, "Project:\n")
	fmt.Fprintf(out, "  Name:               %s\n", cfg.Project.Name)
	fmt.Fprintf(out, "  Root:               %s\n\n", cfg.Project.Root)

	fmt.Fprintf(out, "Index:\n")
	fmt.Fprintf(out, "  Max file size:      %.1f MB\n", float64(cfg.Index.MaxFileSize)/(1024*1024))
	fmt.Fprintf(out, "  Max file count:     %d\n", cfg.Index.MaxFileCount)
	fmt.Fprintf(out, "  Use git:            %t\n", cfg.Index.UseVCS)
	fmt.Fprintf(out, "  Watch:              %t\n", cfg.Index.WatchMode)
	fmt.Fprintf(out, "  Workers:            %d\n\n", cfg.WorkerCount())

	fmt.Fprintf(out, "Search:\n")
	fmt.Fprintf(out, "  Max results:        %d\n", cfg.Search.MaxResults)
	fmt.Fprintf(out, "  Typo tolerance:     %t\n", cfg.Search.TypoTolerance)
	fmt.Fprintf(out, "  Personalization:    %.2f\n\n", cfg.Search.PersonalizationWeight)

	fmt.Fprintf(out, "Storage:\n")
	fmt.Fprintf(out, "  Backend:            %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "  Directory:          %s\n\n", cfg.StorageDir())

	fmt.Fprintf(out, "Include Patterns (%d):\n", len(cfg.Include))
	for _, p := range cfg.Include {
		fmt.Fprintf(out, "  %s\n", p)
	}
	fmt.Fprintf(out, "\nExclude Patterns (%d):\n", len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return nil
}
