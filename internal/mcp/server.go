// Package mcp exposes the findall service as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	fadebug "github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/service"
	"github.com/standardbeagle/findall/internal/version"
)

const serverName = "findall"

type toolHandler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Server registers the findall tools on an MCP server.
type Server struct {
	svc      *service.Service
	server   *mcp.Server
	handlers map[string]toolHandler
	tools    []*mcp.Tool
	logger   *slog.Logger
}

// NewServer creates the MCP server for svc. The tool list is also
// registered with svc as searchable commands.
func NewServer(ctx context.Context, svc *service.Service, logger *slog.Logger) (*Server, error) {
	s := &Server{
		svc:      svc,
		handlers: make(map[string]toolHandler),
		logger:   fadebug.OrDiscard(logger).With("component", "mcp"),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, nil)
	s.registerTools()

	if err := svc.RegisterCommands(ctx, s.Commands()); err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return s, nil
}

func (s *Server) addTool(tool *mcp.Tool, h toolHandler) {
	name := tool.Name
	wrapped := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.recoverFromPanic(name, func() (*mcp.CallToolResult, error) { return h(ctx, req) })
	}
	s.server.AddTool(tool, wrapped)
	s.handlers[name] = wrapped
	s.tools = append(s.tools, tool)
}

func scopeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Category to search: everything, files, types, symbols, properties, text, commands, endpoints",
		Enum:        []any{"everything", "files", "types", "symbols", "properties", "text", "commands", "endpoints"},
	}
}

func (s *Server) registerTools() {
	s.addTool(&mcp.Tool{
		Name:        "search",
		Description: "Fuzzy search across files, symbols, endpoints and commands. Append :<line> to jump to a line. Scope text searches file contents.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Search text, e.g. 'UsrSvc', 'GET /users/{id}', 'main.go:42'"},
				"scope": scopeSchema(),
				"max":   {Type: "integer", Description: "Maximum results"},
			},
			Required: []string{"query"},
		},
	}, s.handleSearch)

	s.addTool(&mcp.Tool{
		Name:        "burst_search",
		Description: "Instant prefix and substring search without fuzzy ranking.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Search text"},
				"scope": scopeSchema(),
				"max":   {Type: "integer", Description: "Maximum results"},
			},
			Required: []string{"query"},
		},
	}, s.handleBurstSearch)

	s.addTool(&mcp.Tool{
		Name:        "resolve",
		Description: "Look up items by the IDs returned from search.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"ids": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Item IDs"},
			},
			Required: []string{"ids"},
		},
	}, s.handleResolve)

	s.addTool(&mcp.Tool{
		Name:        "recent",
		Description: "Recently opened items, most recent first.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"max": {Type: "integer", Description: "Maximum results"},
			},
		},
	}, s.handleRecent)

	s.addTool(&mcp.Tool{
		Name:        "record_activity",
		Description: "Record that an item was opened so it ranks higher later.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "Item ID from search results"},
			},
			Required: []string{"id"},
		},
	}, s.handleRecordActivity)

	s.addTool(&mcp.Tool{
		Name:        "clear_activity",
		Description: "Forget activity history. With id only that item is forgotten.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "Item ID to forget; omit to clear all history"},
			},
		},
	}, s.handleClearActivity)

	s.addTool(&mcp.Tool{
		Name:        "rebuild_index",
		Description: "Re-index the workspace. force discards cached extractions.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force": {Type: "boolean", Description: "Ignore the extraction cache"},
			},
		},
	}, s.handleRebuildIndex)

	s.addTool(&mcp.Tool{
		Name:        "cancel_index",
		Description: "Cancel a running re-index.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleCancelIndex)

	s.addTool(&mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop cached symbol extractions.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleClearCache)

	s.addTool(&mcp.Tool{
		Name:        "index_stats",
		Description: "Corpus size per category and indexer state.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleIndexStats)
}

// Commands lists the registered tools as host commands.
func (s *Server) Commands() []service.Command {
	cmds := make([]service.Command, 0, len(s.tools))
	for _, t := range s.tools {
		cmds = append(cmds, service.Command{Name: t.Name, Description: t.Description})
	}
	return cmds
}

// ToolNames returns the registered tool names, sorted.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked", "tool", operation, "panic", r, "stack", string(debug.Stack()))
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.logger.Warn("tool failed", "tool", operation, "error", err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves the tools over stdio until ctx is done or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.tools))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
