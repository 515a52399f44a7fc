package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/service"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure inside the result with
// IsError set, so the client can see and react to it.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]any{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if hint := errorHint(err); hint != "" {
		errorData["hint"] = hint
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, findallerrors.ErrIndexInProgress):
		return "an index run is already in progress; call cancel_index or wait for it to finish"
	case findallerrors.IsCancelled(err):
		return "the operation was cancelled; run it again to get complete results"
	case errors.Is(err, service.ErrUnknownItem):
		return "use an id returned by search"
	}
	return ""
}
