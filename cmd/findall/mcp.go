package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/indexing"
	"github.com/standardbeagle/findall/internal/mcp"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve findall as an MCP server over stdio",
		Action: func(c *cli.Context) (err error) {
			// stdio belongs to the protocol: log to a file or nowhere.
			logger := debug.NewLogger(nil, debug.Options{MCPMode: true})
			if debug.IsDebugEnabled() || c.Bool("verbose") {
				if f, _, ferr := debug.OpenLogFile(); ferr == nil {
					defer f.Close()
					logger = debug.NewLogger(f, debug.Options{Verbose: true, Component: "findall"})
				}
			}

			svc, err := openService(c, true, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := svc.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			server, err := mcp.NewServer(c.Context, svc, logger)
			if err != nil {
				return err
			}
			svc.IndexInBackground(func(p indexing.Progress) {
				logger.Debug("indexing", "phase", p.Phase, "percent", p.Percent)
			})

			if err := server.Start(c.Context); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
