package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/findall/internal/types"
)

const sqliteFileName = "findall.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS file_cache (
	path         TEXT PRIMARY KEY,
	mod_time     INTEGER NOT NULL,
	content_hash INTEGER NOT NULL,
	symbols      BLOB
);
CREATE TABLE IF NOT EXISTS activity (
	item_id          TEXT PRIMARY KEY,
	last_accessed_at INTEGER NOT NULL,
	access_count     INTEGER NOT NULL,
	cached_score     REAL NOT NULL DEFAULT 0
);`

// SQLiteStore keeps state in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) dir/findall.db. dir ":memory:" opens
// a private in-memory database.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	dsn := dir
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
		dsn = filepath.Join(dir, sqliteFileName)
	}

	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer and :memory: databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if dir != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadCache(ctx context.Context) (map[string]types.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, mod_time, content_hash, symbols FROM file_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]types.CacheEntry)
	for rows.Next() {
		var (
			path    string
			modTime int64
			hash    int64
			symbols []byte
		)
		if err := rows.Scan(&path, &modTime, &hash, &symbols); err != nil {
			return nil, err
		}
		entry := types.CacheEntry{
			ModTime:     time.Unix(0, modTime),
			ContentHash: uint64(hash),
		}
		if len(symbols) > 0 {
			if err := json.Unmarshal(symbols, &entry.Symbols); err != nil {
				return nil, fmt.Errorf("decode symbols for %s: %w", path, err)
			}
		}
		entries[path] = entry
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_cache`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_cache (path, mod_time, content_hash, symbols) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for path, entry := range entries {
		symbols, err := json.Marshal(entry.Symbols)
		if err != nil {
			return fmt.Errorf("encode symbols for %s: %w", path, err)
		}
		if _, err := stmt.ExecContext(ctx, path, entry.ModTime.UnixNano(), int64(entry.ContentHash), symbols); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadActivity(ctx context.Context) ([]types.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, last_accessed_at, access_count, cached_score FROM activity ORDER BY last_accessed_at DESC, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ActivityRecord
	for rows.Next() {
		var (
			r        types.ActivityRecord
			accessed int64
		)
		if err := rows.Scan(&r.ItemID, &accessed, &r.AccessCount, &r.CachedScore); err != nil {
			return nil, err
		}
		r.LastAccessedAt = time.Unix(0, accessed)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveActivity(ctx context.Context, records []types.ActivityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activity (item_id, last_accessed_at, access_count, cached_score)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			cached_score = excluded.cached_score`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ItemID, r.LastAccessedAt.UnixNano(), r.AccessCount, r.CachedScore); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_cache; DELETE FROM activity;`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
