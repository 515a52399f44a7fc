package service

import (
	"context"
	"fmt"

	"github.com/standardbeagle/findall/internal/search"
	"github.com/standardbeagle/findall/internal/types"
)

func (s *Service) limit(maxResults int) int {
	if maxResults > 0 {
		return maxResults
	}
	return s.cfg.Search.MaxResults
}

// Search ranks the corpus for query within scope.
func (s *Service) Search(ctx context.Context, query string, scope types.Scope, maxResults int) ([]types.SearchResult, error) {
	return s.engine.Search(ctx, query, scope, s.limit(maxResults), s.cfg.Search.EnableAcronym)
}

// BurstSearch is the cheap prefix/substring pass used while typing.
func (s *Service) BurstSearch(query string, scope types.Scope, maxResults int) []types.SearchResult {
	return s.engine.BurstSearch(query, scope, s.limit(maxResults))
}

// SearchStream emits burst results and then the fully ranked list.
func (s *Service) SearchStream(ctx context.Context, query string, scope types.Scope, maxResults int, emit func(results []types.SearchResult, final bool)) error {
	return s.engine.SearchStream(ctx, query, scope, s.limit(maxResults), s.cfg.Search.EnableAcronym, emit)
}

// ResolveItems returns the corpus items for ids, skipping unknown IDs.
func (s *Service) ResolveItems(ids []string) []types.SearchableItem {
	return s.engine.ResolveItems(ids)
}

// GetRecentItems returns up to n recently used items still in the
// corpus, most recent first.
func (s *Service) GetRecentItems(n int) []types.SearchResult {
	return s.engine.GetRecentItems(n)
}

// RecordActivity notes that the item with id was opened. It is a no-op
// when activity tracking is disabled.
func (s *Service) RecordActivity(id string) error {
	if s.tracker == nil {
		return nil
	}
	items := s.engine.ResolveItems([]string{id})
	if len(items) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	s.tracker.RecordAccess(items[0])
	return nil
}

// ForgetActivity drops the history of the item with id. The removal is
// persisted in the background.
func (s *Service) ForgetActivity(id string) error {
	if s.tracker == nil {
		return nil
	}
	if !s.tracker.Remove(id) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return nil
}

// ClearActivity drops all activity history and waits until the empty
// history is persisted.
func (s *Service) ClearActivity(ctx context.Context) error {
	if s.tracker == nil {
		return nil
	}
	s.tracker.Clear()
	return s.tracker.Save(ctx)
}

// Command is a host action offered in the commands scope.
type Command struct {
	Name        string
	Description string
}

// CommandItemID returns the corpus ID of the command named name.
func CommandItemID(name string) string {
	return "command:" + name
}

// RegisterCommands replaces the host commands in the corpus. Commands
// survive forced rebuilds.
func (s *Service) RegisterCommands(ctx context.Context, cmds []Command) error {
	items := make([]types.SearchableItem, 0, len(cmds))
	for _, c := range cmds {
		items = append(items, types.SearchableItem{
			ID:     CommandItemID(c.Name),
			Name:   c.Name,
			Type:   types.ItemCommand,
			Detail: c.Description,
		})
	}

	s.cmdMu.Lock()
	old := s.commands
	s.commands = items
	s.cmdMu.Unlock()

	stale := make([]string, 0, len(old))
	for _, item := range old {
		stale = append(stale, item.ID)
	}
	ok := s.send(op{apply: func(e *search.Engine) {
		e.RemoveItems(stale)
		e.AddItems(items)
	}})
	if !ok {
		return ErrClosed
	}
	return s.flush(ctx)
}

func (s *Service) commandItems() []types.SearchableItem {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return append([]types.SearchableItem(nil), s.commands...)
}
