// Package store persists the extraction cache and activity history.
//
// Four backends share one interface: a JSON flat file (default), SQLite,
// Badger and an in-memory store for tests and read-only runs.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/types"
)

// Store is the persistence boundary. Implementations are safe for
// concurrent use.
type Store interface {
	LoadCache(ctx context.Context) (map[string]types.CacheEntry, error)
	SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error
	LoadActivity(ctx context.Context) ([]types.ActivityRecord, error)
	SaveActivity(ctx context.Context, records []types.ActivityRecord) error
	Clear(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by cfg.Storage.Backend under
// cfg.StorageDir(). Every call is counted and errors are wrapped as
// StoreError.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	logger = debug.OrDiscard(logger).With("component", "store")
	dir := cfg.StorageDir()

	var (
		s   Store
		err error
	)
	switch cfg.Storage.Backend {
	case "", config.BackendJSON:
		s, err = NewJSONStore(dir)
	case config.BackendSQLite:
		s, err = NewSQLiteStore(dir)
	case config.BackendBadger:
		s, err = NewBadgerStore(BadgerOptions{Dir: dir, Logger: logger})
	case config.BackendMemory:
		s = NewMemoryStore()
	default:
		return nil, findallerrors.NewConfigError("storage.backend", cfg.Storage.Backend,
			fmt.Errorf("unknown backend"))
	}
	if err != nil {
		return nil, findallerrors.NewStoreError(cfg.Storage.Backend, "open", err)
	}

	logger.Debug("opened store", "backend", cfg.Storage.Backend, "dir", dir)
	return Instrument(s, cfg.Storage.Backend), nil
}

// Instrument wraps s so each operation is counted in the store metrics
// and failures carry the backend name.
func Instrument(s Store, backend string) Store {
	if backend == "" {
		backend = config.BackendJSON
	}
	return &instrumented{next: s, backend: backend}
}

type instrumented struct {
	next    Store
	backend string
}

func (s *instrumented) wrap(op string, err error) error {
	metrics.RecordStoreOp(op, err)
	if err == nil {
		return nil
	}
	return findallerrors.NewStoreError(s.backend, op, err)
}

func (s *instrumented) LoadCache(ctx context.Context) (map[string]types.CacheEntry, error) {
	entries, err := s.next.LoadCache(ctx)
	return entries, s.wrap("load_cache", err)
}

func (s *instrumented) SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error {
	return s.wrap("save_cache", s.next.SaveCache(ctx, entries))
}

func (s *instrumented) LoadActivity(ctx context.Context) ([]types.ActivityRecord, error) {
	records, err := s.next.LoadActivity(ctx)
	return records, s.wrap("load_activity", err)
}

func (s *instrumented) SaveActivity(ctx context.Context, records []types.ActivityRecord) error {
	return s.wrap("save_activity", s.next.SaveActivity(ctx, records))
}

func (s *instrumented) Clear(ctx context.Context) error {
	return s.wrap("clear", s.next.Clear(ctx))
}

func (s *instrumented) Close() error {
	return s.wrap("close", s.next.Close())
}
