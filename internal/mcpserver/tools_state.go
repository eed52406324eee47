package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"cricket-auction/internal/auction/viewmodel"
)

func (s *Server) registerStateTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_auction_state",
			mcp.WithDescription("Current auction state. With a team api_key the response includes your budget, min_next_bid and can_bid."),
			mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Auction session id")),
			mcp.WithString(argAPIKey, mcp.Description("Team or admin api key; omit for the public view")),
		),
		s.handleGetAuctionState,
	)

	if s.outcomes != nil {
		s.mcpServer.AddTool(
			mcp.NewTool(
				"list_results",
				mcp.WithDescription("Sold and unsold players of a session in resolution order"),
				mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Auction session id")),
			),
			s.handleListResults,
		)
	}
}

func (s *Server) handleGetAuctionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errRes := requireSessionID(request)
	if errRes != nil {
		return errRes, nil
	}
	who, errRes := s.identify(ctx, request.GetString(argAPIKey, ""))
	if errRes != nil {
		return errRes, nil
	}
	snap, err := s.coord.Snapshot(ctx, sessionID)
	if err != nil {
		return intentError(err), nil
	}
	switch {
	case who.IsAdmin():
		return toolResult(viewmodel.BuildMonitorState(snap)), nil
	case who.IsTeam():
		return toolResult(viewmodel.BuildTeamState(snap, who.TeamID)), nil
	default:
		return toolResult(viewmodel.BuildPublicState(snap)), nil
	}
}

func (s *Server) handleListResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errRes := requireSessionID(request)
	if errRes != nil {
		return errRes, nil
	}
	results, err := s.outcomes.ListOutcomes(ctx, sessionID)
	if err != nil {
		return toolError("internal_error", err.Error()), nil
	}
	return toolResult(map[string]any{
		"session_id": sessionID,
		"results":    results,
	}), nil
}
