package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/types"
)

const defaultRecent = 20

type SearchParams struct {
	Query string `json:"query"`
	Scope string `json:"scope,omitempty"`
	Max   int    `json:"max,omitempty"`
}

type ResolveParams struct {
	IDs []string `json:"ids"`
}

type RecentParams struct {
	Max int `json:"max,omitempty"`
}

type ActivityParams struct {
	ID string `json:"id"`
}

type RebuildParams struct {
	Force bool `json:"force,omitempty"`
}

// SearchResponse is the payload of search and burst_search.
type SearchResponse struct {
	Query   string               `json:"query"`
	Scope   types.Scope          `json:"scope"`
	Count   int                  `json:"count"`
	Results []types.SearchResult `json:"results"`
}

func decodeParams(req *mcp.CallToolRequest, dst any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, dst); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func parseScope(s string) (types.Scope, error) {
	if strings.TrimSpace(s) == "" {
		return types.ScopeEverything, nil
	}
	return types.ParseScope(s)
}

func (s *Server) searchParams(req *mcp.CallToolRequest) (SearchParams, types.Scope, error) {
	var p SearchParams
	if err := decodeParams(req, &p); err != nil {
		return p, 0, err
	}
	if strings.TrimSpace(p.Query) == "" {
		return p, 0, errors.New("query is required")
	}
	scope, err := parseScope(p.Scope)
	if err != nil {
		return p, 0, err
	}
	return p, scope, nil
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, scope, err := s.searchParams(req)
	if err != nil {
		return nil, err
	}
	results, err := s.svc.Search(ctx, p.Query, scope, p.Max)
	if err != nil && !findallerrors.IsCancelled(err) {
		return nil, err
	}
	return createJSONResponse(SearchResponse{Query: p.Query, Scope: scope, Count: len(results), Results: results})
}

func (s *Server) handleBurstSearch(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, scope, err := s.searchParams(req)
	if err != nil {
		return nil, err
	}
	results := s.svc.BurstSearch(p.Query, scope, p.Max)
	return createJSONResponse(SearchResponse{Query: p.Query, Scope: scope, Count: len(results), Results: results})
}

func (s *Server) handleResolve(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ResolveParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if len(p.IDs) == 0 {
		return nil, errors.New("ids is required")
	}
	return createJSONResponse(map[string]any{"items": s.svc.ResolveItems(p.IDs)})
}

func (s *Server) handleRecent(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p RecentParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.Max <= 0 {
		p.Max = defaultRecent
	}
	return createJSONResponse(map[string]any{"results": s.svc.GetRecentItems(p.Max)})
}

func (s *Server) handleRecordActivity(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ActivityParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("id is required")
	}
	if err := s.svc.RecordActivity(p.ID); err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]any{"success": true, "id": p.ID})
}

func (s *Server) handleClearActivity(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ActivityParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.ID != "" {
		if err := s.svc.ForgetActivity(p.ID); err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]any{"success": true, "id": p.ID})
	}
	if err := s.svc.ClearActivity(ctx); err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]any{"success": true, "cleared": true})
}

func (s *Server) handleRebuildIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p RebuildParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.svc.RebuildIndex(ctx, p.Force, nil); err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]any{
		"success":     true,
		"force":       p.Force,
		"duration_ms": time.Since(start).Milliseconds(),
		"stats":       s.svc.IndexStats(),
	})
}

func (s *Server) handleCancelIndex(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.svc.CancelIndex()
	return createJSONResponse(map[string]any{"success": true})
}

func (s *Server) handleClearCache(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.ClearCache(ctx); err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]any{"success": true})
}

func (s *Server) handleIndexStats(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse(s.svc.IndexStats())
}
