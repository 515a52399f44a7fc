package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/service"
	"github.com/standardbeagle/findall/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "findall:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "findall",
		Usage:                  "Search anything in a code workspace: files, symbols, endpoints and text",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.ConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root to index (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only index files matching glob patterns (e.g., --include '**/*.go')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Also exclude files matching glob patterns (e.g., --exclude '**/testdata/**')",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Persistence backend: json, sqlite, badger or memory",
			},
			&cli.BoolFlag{
				Name:  "no-vcs",
				Usage: "Walk the file system instead of asking git for files",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g., :9090)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug information to stderr",
			},
		},
		Commands: []*cli.Command{
			searchCmd(),
			burstCmd(),
			recentCmd(),
			indexCmd(),
			statsCmd(),
			mcpCmd(),
			configCmd(),
		},
	}
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = abs
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if root != "" {
		cfg.Project.Root = root
		cfg.Project.Name = filepath.Base(root)
	}
	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	if backend := c.String("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if c.Bool("no-vcs") {
		cfg.Index.UseVCS = false
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(c *cli.Context) *slog.Logger {
	return debug.NewLogger(c.App.ErrWriter, debug.Options{Verbose: c.Bool("verbose")})
}

// openService loads the config and opens a service over it. One-shot
// commands do not need change notifications.
func openService(c *cli.Context, watch bool, logger *slog.Logger) (*service.Service, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	if !watch {
		cfg.Index.WatchMode = false
	}
	startMetrics(c, logger)
	return service.Open(c.Context, cfg, service.Options{Logger: logger})
}

func startMetrics(c *cli.Context, logger *slog.Logger) {
	addr := c.String("metrics-addr")
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(c.Context, addr, logger); err != nil {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

// withIndexedService opens a service, indexes the workspace and runs fn.
func withIndexedService(c *cli.Context, fn func(svc *service.Service, out io.Writer) error) (err error) {
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

	if err := svc.RebuildIndex(c.Context, false, nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return fn(svc, c.App.Writer)
}

var errUsage = errors.New("missing argument")
