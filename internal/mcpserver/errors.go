package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"cricket-auction/internal/bidgateway/runtime"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": message,
			},
		},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// intentError uses the same reason codes the websocket and REST callers see.
func intentError(err error) *mcp.CallToolResult {
	if err == nil {
		return toolError("internal_error", "unknown error")
	}
	_, code := runtime.MapIntentError(err)
	return toolError(code, err.Error())
}
