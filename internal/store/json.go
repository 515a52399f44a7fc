package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/standardbeagle/findall/internal/types"
)

const (
	cacheFileName    = "cache.json"
	activityFileName = "activity.json"

	// jsonFormatVersion guards against reading files written by an
	// incompatible build.
	jsonFormatVersion = 1
)

type cacheFile struct {
	Version int                         `json:"version"`
	Entries map[string]types.CacheEntry `json:"entries"`
}

type activityFile struct {
	Version int                    `json:"version"`
	Records []types.ActivityRecord `json:"records"`
}

// JSONStore writes one JSON document per concern into a directory.
// Writes go to a temporary file that is renamed into place.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) LoadCache(ctx context.Context) (map[string]types.CacheEntry, error) {
	var f cacheFile
	found, err := s.read(ctx, cacheFileName, &f)
	if err != nil || !found || f.Version != jsonFormatVersion || f.Entries == nil {
		return make(map[string]types.CacheEntry), err
	}
	return f.Entries, nil
}

func (s *JSONStore) SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error {
	return s.write(ctx, cacheFileName, cacheFile{Version: jsonFormatVersion, Entries: entries})
}

func (s *JSONStore) LoadActivity(ctx context.Context) ([]types.ActivityRecord, error) {
	var f activityFile
	found, err := s.read(ctx, activityFileName, &f)
	if err != nil || !found || f.Version != jsonFormatVersion {
		return nil, err
	}
	return f.Records, nil
}

func (s *JSONStore) SaveActivity(ctx context.Context, records []types.ActivityRecord) error {
	return s.write(ctx, activityFileName, activityFile{Version: jsonFormatVersion, Records: records})
}

func (s *JSONStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{cacheFileName, activityFileName} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) read(ctx context.Context, name string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *JSONStore) write(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
