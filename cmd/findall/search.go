package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/findall/internal/service"
	"github.com/standardbeagle/findall/internal/types"
)

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "scope",
			Aliases: []string{"s"},
			Usage:   "everything, files, types, symbols, properties, text, commands or endpoints",
			Value:   types.ScopeEverything.String(),
		},
		&cli.IntFlag{
			Name:    "max",
			Aliases: []string{"m"},
			Usage:   "Maximum results (0 = configured default)",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output as JSON",
		},
	}
}

func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Fuzzy search the workspace",
		ArgsUsage: "<query>",
		Flags:     queryFlags(),
		Action: func(c *cli.Context) error {
			query, scope, err := queryArgs(c)
			if err != nil {
				return err
			}
			return withIndexedService(c, func(svc *service.Service, out io.Writer) error {
				results, err := svc.Search(c.Context, query, scope, c.Int("max"))
				if err != nil {
					return err
				}
				return printResults(out, results, c.Bool("json"))
			})
		},
	}
}

func burstCmd() *cli.Command {
	return &cli.Command{
		Name:      "burst",
		Usage:     "Prefix and substring search without fuzzy ranking",
		ArgsUsage: "<query>",
		Flags:     queryFlags(),
		Action: func(c *cli.Context) error {
			query, scope, err := queryArgs(c)
			if err != nil {
				return err
			}
			return withIndexedService(c, func(svc *service.Service, out io.Writer) error {
				return printResults(out, svc.BurstSearch(query, scope, c.Int("max")), c.Bool("json"))
			})
		},
	}
}

func recentCmd() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List recently opened items",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Aliases: []string{"m"}, Value: 20, Usage: "Maximum results"},
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
		},
		Action: func(c *cli.Context) error {
			return withIndexedService(c, func(svc *service.Service, out io.Writer) error {
				return printResults(out, svc.GetRecentItems(c.Int("max")), c.Bool("json"))
			})
		},
	}
}

func queryArgs(c *cli.Context) (string, types.Scope, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", 0, fmt.Errorf("%w: usage: findall %s <query>", errUsage, c.Command.Name)
	}
	scope, err := types.ParseScope(c.String("scope"))
	if err != nil {
		return "", 0, err
	}
	return query, scope, nil
}

func printResults(out io.Writer, results []types.SearchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "no results")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\n", r.Score, r.Item.Type, r.Item.Name, location(r.Item))
	}
	return tw.Flush()
}

func location(item types.SearchableItem) string {
	path := item.RelativeFilePath
	if path == "" {
		path = item.FilePath
	}
	if path == "" {
		return item.Detail
	}
	if item.Line > 0 {
		return fmt.Sprintf("%s:%d", path, item.Line)
	}
	return path
}
