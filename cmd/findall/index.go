package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/findall/internal/indexing"
	"github.com/standardbeagle/findall/internal/service"
)

func indexCmd() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Index the workspace and persist the extraction cache",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Discard cached extractions"},
			&cli.BoolFlag{Name: "clear-cache", Usage: "Clear the persisted cache before indexing"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not report progress"},
		},
		Action: func(c *cli.Context) (err error) {
			logger := newLogger(c)
			svc, err := openService(c, false, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := svc.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			if c.Bool("clear-cache") {
				if err := svc.ClearCache(c.Context); err != nil {
					return err
				}
			}

			var progress indexing.ProgressFunc
			if !c.Bool("quiet") {
				progress = progressPrinter(c.App.ErrWriter)
			}
			start := time.Now()
			if err := svc.RebuildIndex(c.Context, c.Bool("force"), progress); err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			if progress != nil {
				fmt.Fprintln(c.App.ErrWriter)
			}

			st := svc.IndexStats()
			_, err = fmt.Fprintf(c.App.Writer, "indexed %d files, %d items in %s\n",
				st.Files, st.Total, time.Since(start).Round(time.Millisecond))
			return err
		},
	}
}

func progressPrinter(w io.Writer) indexing.ProgressFunc {
	return func(p indexing.Progress) {
		fmt.Fprintf(w, "\r%-10s %5.1f%%  %d/%d files", p.Phase, p.Percent, p.FilesProcessed, p.TotalFiles)
	}
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show corpus size per category",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
		},
		Action: func(c *cli.Context) error {
			return withIndexedService(c, func(svc *service.Service, out io.Writer) error {
				return printStats(out, svc.IndexStats(), c.Bool("json"))
			})
		},
	}
}

func printStats(out io.Writer, st service.Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	_, err := fmt.Fprintf(out, `Files:       %d
Types:       %d
Symbols:     %d
Properties:  %d
Endpoints:   %d
Commands:    %d
Total:       %d
Cached:      %d
State:       %s
`, st.Files, st.Types, st.Symbols, st.Properties, st.Endpoints, st.Commands, st.Total, st.CacheSize, st.State)
	return err
}
