package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/standardbeagle/findall/internal/types"
)

var (
	cachePrefix    = []byte("c/")
	activityPrefix = []byte("a/")
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerStore keeps one key per cache entry ("c/<path>") and per
// activity record ("a/<item id>").
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger routes Badger's printf-style logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Dir, err)
		}
		bo = badger.DefaultOptions(opts.Dir)
	}
	bo = bo.WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bo = bo.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) LoadCache(ctx context.Context) (map[string]types.CacheEntry, error) {
	entries := make(map[string]types.CacheEntry)
	err := s.scan(ctx, cachePrefix, func(key, val []byte) error {
		var e types.CacheEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("decode cache entry %s: %w", key, err)
		}
		entries[string(key)] = e
		return nil
	})
	return entries, err
}

func (s *BadgerStore) SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error {
	if err := s.db.DropPrefix(cachePrefix); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for path, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := wb.Set(prefixed(cachePrefix, path), val); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) LoadActivity(ctx context.Context) ([]types.ActivityRecord, error) {
	var records []types.ActivityRecord
	err := s.scan(ctx, activityPrefix, func(key, val []byte) error {
		var r types.ActivityRecord
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode activity %s: %w", key, err)
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

func (s *BadgerStore) SaveActivity(ctx context.Context, records []types.ActivityRecord) error {
	if err := s.db.DropPrefix(activityPrefix); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := wb.Set(prefixed(activityPrefix, r.ItemID), val); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Clear(context.Context) error {
	return s.db.DropPrefix(cachePrefix, activityPrefix)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// scan calls fn with the unprefixed key and value of every entry under
// prefix.
func (s *BadgerStore) scan(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)[len(prefix):]
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func prefixed(prefix []byte, key string) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}
