package indexing

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// discover lists candidate files. Each root is listed through the VCS
// when possible; roots the VCS cannot serve are walked instead.
func (ix *Indexer) discover(ctx context.Context) ([]string, error) {
	roots := ix.ws.Roots()
	var files []string
	walkRoots := roots

	if ix.vcs != nil && ix.cfg.Index.UseVCS {
		lists := make([][]string, len(roots))
		failed := make([]bool, len(roots))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentRoots)
		for i, root := range roots {
			g.Go(func() error {
				list, err := ix.vcs.ListFiles(gctx, root)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					ix.logger.Debug("vcs listing unavailable, walking root", "root", root, "error", err)
					failed[i] = true
					return nil
				}
				lists[i] = list
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		walkRoots = nil
		for i, root := range roots {
			if failed[i] {
				walkRoots = append(walkRoots, root)
				continue
			}
			files = append(files, lists[i]...)
		}
	}

	if len(walkRoots) > 0 {
		walked, err := ix.ws.FindFiles(ctx, ix.cfg.Include, ix.cfg.Exclude)
		if err != nil {
			return nil, err
		}
		wanted := newPathFilter(walkRoots, nil, nil)
		for _, path := range walked {
			if root, ok := ix.filter.rootOf(path); ok {
				if _, walk := wanted.rootOf(root); walk {
					files = append(files, path)
				}
			}
		}
	}

	files = ix.acceptFiles(files)
	if limit := ix.cfg.Index.MaxFileCount; limit > 0 && len(files) > limit {
		ix.logger.Warn("file count limit reached, truncating", "found", len(files), "limit", limit)
		files = files[:limit]
	}
	return files, nil
}

// acceptFiles filters, dedupes and sorts discovered paths.
func (ix *Indexer) acceptFiles(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := files[:0]
	for _, path := range files {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if ix.filter.accepts(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// prioritize moves files the VCS reports as modified to the front, so a
// warm rebuild refreshes edited files first. Order is otherwise kept.
func (ix *Indexer) prioritize(ctx context.Context, files []fileInfo) []fileInfo {
	if ix.vcs == nil || !ix.cfg.Index.UseVCS {
		return files
	}
	modified, err := ix.vcs.ModifiedFiles(ctx, ix.ws.Roots())
	if err != nil || len(modified) == 0 {
		return files
	}
	hot := make(map[string]bool, len(modified))
	for _, p := range modified {
		hot[p] = true
	}
	sort.SliceStable(files, func(i, j int) bool {
		return hot[files[i].path] && !hot[files[j].path]
	})
	return files
}
