package indexing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/types"
)

// fileResult is the extraction outcome of one file.
type fileResult struct {
	file    fileInfo
	hash    uint64
	symbols []types.SearchableItem
	cached  bool
	failed  bool
}

// workQueue is the shared pull queue of the extraction pool.
type workQueue struct {
	mu    sync.Mutex
	files []fileInfo
}

func (q *workQueue) take(n int) []fileInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.files) {
		n = len(q.files)
	}
	batch := q.files[:n:n]
	q.files = q.files[n:]
	return batch
}

// putBack returns unprocessed files to the front of the queue.
func (q *workQueue) putBack(files []fileInfo) {
	if len(files) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.files = append(append([]fileInfo(nil), files...), q.files...)
}

func (q *workQueue) drain() []fileInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	files := q.files
	q.files = nil
	return files
}

// newExtractor creates and initializes an extractor from the factory.
func (ix *Indexer) newExtractor() (Extractor, error) {
	if ix.factory == nil {
		return nil, fmt.Errorf("no extractor configured")
	}
	ex, err := ix.factory()
	if err != nil {
		return nil, err
	}
	if err := ex.Init(); err != nil {
		closeExtractor(ex)
		return nil, err
	}
	return ex, nil
}

func closeExtractor(ex Extractor) {
	switch c := ex.(type) {
	case interface{ Close() }:
		c.Close()
	case io.Closer:
		_ = c.Close()
	}
}

// processFile hashes f and either reuses cached symbols or extracts them.
// ok is false when the extractor panicked.
func (ix *Indexer) processFile(ex Extractor, f fileInfo, force bool) (res fileResult, ok bool) {
	res.file = f
	hash, err := types.HashFile(f.path)
	if err != nil {
		ix.logger.Debug("hash failed", "path", f.path, "error", err)
		res.failed = true
		return res, true
	}
	res.hash = hash
	if !force {
		if symbols, hit := ix.cache.lookup(f.path, hash); hit {
			res.symbols, res.cached = symbols, true
			return res, true
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err := findallerrors.NewExtractionError(f.path, "", fmt.Errorf("panic: %v", r))
			ix.logger.Error("extractor panicked", "path", f.path, "error", err)
			res.symbols, res.failed, ok = nil, true, false
		}
	}()
	res.symbols = ex.ParseFile(f.path)
	return res, true
}

// runExtraction drives the worker pool over files and hands every result
// to sink on the calling goroutine. Results observed after cancellation
// are discarded. Files left over when every worker is gone are extracted
// inline.
func (ix *Indexer) runExtraction(ctx context.Context, files []fileInfo, force bool, progress *ProgressTracker, sink func(fileResult)) error {
	queue := &workQueue{files: files}
	results := make(chan fileResult, 64)

	workers := ix.cfg.WorkerCount()
	batchSize := ix.cfg.Index.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ix.runWorker(id, queue, batchSize, force, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		progress.Step(res.file.path)
		if ix.isCancelled() {
			continue
		}
		sink(res)
	}
	if err := ix.checkCancelled(ctx); err != nil {
		return err
	}

	if rest := queue.drain(); len(rest) > 0 {
		ix.logger.Warn("extraction pool unavailable, extracting inline", "files", len(rest))
		ix.extractInline(ctx, rest, force, progress, sink)
	}
	return ix.checkCancelled(ctx)
}

func (ix *Indexer) runWorker(id int, queue *workQueue, batchSize int, force bool, results chan<- fileResult) {
	ex, err := ix.newExtractor()
	if err != nil {
		ix.logger.Warn("extraction worker unavailable", "worker", id, "error", err)
		return
	}
	defer closeExtractor(ex)

	for !ix.isCancelled() {
		batch := queue.take(batchSize)
		if len(batch) == 0 {
			return
		}
		for i, f := range batch {
			res, ok := ix.processFile(ex, f, force)
			results <- res
			if !ok {
				queue.putBack(batch[i+1:])
				metrics.WorkerFailures.Inc()
				ix.logger.Warn("extraction worker retired", "worker", id, "requeued", len(batch)-i-1)
				return
			}
		}
	}
}

// extractInline processes files without the pool. Hashing runs with the
// listing concurrency; parsing shares one extractor. When no extractor
// can be created, symbols come from the symbol provider if there is one.
func (ix *Indexer) extractInline(ctx context.Context, files []fileInfo, force bool, progress *ProgressTracker, sink func(fileResult)) {
	var shared *lockedExtractor
	if ex, err := ix.newExtractor(); err != nil {
		ix.logger.Warn("no extractor available", "error", err)
	} else {
		defer closeExtractor(ex)
		shared = &lockedExtractor{Extractor: ex}
	}

	ops := int64(ix.cfg.Performance.MaxConcurrentFileOps)
	if ops <= 0 {
		ops = 1
	}
	sem := semaphore.NewWeighted(ops)
	var sinkMu sync.Mutex
	var wg sync.WaitGroup

	for _, f := range files {
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

			var res fileResult
			if shared != nil {
				res, _ = ix.processFile(shared, f, force)
			} else {
				res = ix.providerSymbols(ctx, f)
			}

			progress.Step(f.path)
			sinkMu.Lock()
			defer sinkMu.Unlock()
			if !ix.isCancelled() {
				sink(res)
			}
		}()
	}
	wg.Wait()
}

// lockedExtractor serializes parsing on a shared extractor.
type lockedExtractor struct {
	mu sync.Mutex
	Extractor
}

func (l *lockedExtractor) ParseFile(path string) []types.SearchableItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Extractor.ParseFile(path)
}

// providerSymbols asks the symbol provider for one file's symbols. The
// result is not cached.
func (ix *Indexer) providerSymbols(ctx context.Context, f fileInfo) fileResult {
	res := fileResult{file: f, failed: true}
	if ix.symbols == nil {
		return res
	}
	symbols, err := ix.symbols.DocumentSymbols(ctx, f.path)
	if err != nil {
		return res
	}
	res.symbols = symbols
	return res
}
