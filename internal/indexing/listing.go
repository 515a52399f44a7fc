package indexing

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/types"
)

// fileInfo is a listed file and what extraction needs to know about it.
type fileInfo struct {
	path    string
	rel     string
	size    int64
	modTime time.Time
	binary  bool
}

func (f fileInfo) item() types.SearchableItem {
	return types.NewFileItem(f.path, f.rel, f.size)
}

// extractable reports whether f should be handed to an extractor.
func (ix *Indexer) extractable(f fileInfo) bool {
	if f.binary || f.size == 0 {
		return false
	}
	if limit := ix.cfg.Index.MaxFileSize; limit > 0 && f.size > limit {
		return false
	}
	return ix.supports == nil || ix.supports(f.path)
}

// listFiles inspects paths with bounded concurrency. Generated files and
// paths that are not regular files are dropped.
func (ix *Indexer) listFiles(ctx context.Context, paths []string, progress *ProgressTracker) ([]fileInfo, error) {
	ops := int64(ix.cfg.Performance.MaxConcurrentFileOps)
	if ops <= 0 {
		ops = 1
	}
	sem := semaphore.NewWeighted(ops)
	results := make([]*fileInfo, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		if ix.isCancelled() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			fi, err := ix.inspect(ctx, path)
			if err != nil {
				ix.logger.Debug("skipping file", "path", path, "error", err)
			}
			results[i] = fi
			progress.Step(path)
		}()
	}
	wg.Wait()

	if err := ix.checkCancelled(ctx); err != nil {
		return nil, err
	}

	files := make([]fileInfo, 0, len(paths))
	for _, fi := range results {
		if fi != nil {
			files = append(files, *fi)
		}
	}
	return files, nil
}

// inspect stats path and sniffs its head. A nil result with a nil error
// means the file is deliberately skipped.
func (ix *Indexer) inspect(ctx context.Context, path string) (*fileInfo, error) {
	var info os.FileInfo
	err := withRetry(ctx, func() error {
		var serr error
		info, serr = os.Stat(path)
		return serr
	})
	if err != nil {
		return nil, findallerrors.NewFileError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	fi := &fileInfo{
		path:    path,
		rel:     ix.ws.ToRelativePath(path),
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	if ix.detector.IsBinaryByExtension(path) {
		fi.binary = true
		return fi, nil
	}
	if fi.size == 0 {
		return fi, nil
	}

	var head []byte
	err = withRetry(ctx, func() error {
		var rerr error
		head, rerr = readHead(path)
		return rerr
	})
	if err != nil {
		return nil, findallerrors.NewFileError("read", path, err)
	}
	if ix.cfg.Index.SkipGenerated && IsGenerated(head) {
		return nil, nil
	}
	fi.binary = ix.detector.IsBinaryByContent(head)
	return fi, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// withRetry runs fn, retrying descriptor exhaustion with exponential
// backoff.
func withRetry(ctx context.Context, fn func() error) error {
	delay := openRetryBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !findallerrors.IsTooManyOpenFiles(err) || attempt >= maxOpenRetries {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
