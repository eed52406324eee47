package mcpserver

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	argSessionID = "session_id"
	argAPIKey    = "api_key"
	argAmount    = "amount"
	argRequestID = "request_id"
)

func requireSessionID(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id, err := request.RequireString(argSessionID)
	if err != nil {
		return "", toolError("invalid_request", err.Error())
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", toolError("invalid_request", "session_id is required")
	}
	return id, nil
}

// requireAmount accepts whole currency units only.
func requireAmount(request mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	v, err := request.RequireFloat(argAmount)
	if err != nil {
		return 0, toolError("invalid_request", err.Error())
	}
	if v <= 0 || v != float64(int64(v)) {
		return 0, toolError("invalid_request", "amount must be a positive integer")
	}
	return int64(v), nil
}
