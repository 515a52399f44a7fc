package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool invokes a registered tool in process, bypassing the stdio
// transport, and returns the text of its result.
func (s *Server) CallTool(ctx context.Context, toolName string, params map[string]any) (string, bool, error) {
	h, ok := s.handlers[toolName]
	if !ok {
		return "", false, fmt.Errorf("unknown tool: %s", toolName)
	}
	args, err := json.Marshal(params)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal params: %w", err)
	}

	result, err := h(ctx, &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Name: toolName, Arguments: args}})
	if err != nil {
		return "", false, err
	}
	if result == nil || len(result.Content) == 0 {
		return "", false, fmt.Errorf("tool %s returned no content", toolName)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return "", result.IsError, fmt.Errorf("tool %s returned %T", toolName, result.Content[0])
	}
	return text.Text, result.IsError, nil
}
