package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/bidgateway/runtime"
)

func (s *Server) registerBidTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"place_bid",
			mcp.WithDescription("Bid on the player currently under the hammer. The amount must beat the current price by at least the bid increment."),
			mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Auction session id")),
			mcp.WithString(argAPIKey, mcp.Required(), mcp.Description("Team api key")),
			mcp.WithNumber(argAmount, mcp.Required(), mcp.Description("Bid amount in whole currency units")),
			mcp.WithString(argRequestID, mcp.Description("Optional idempotency key; a retried request_id returns the first result")),
		),
		s.handlePlaceBid,
	)
}

func (s *Server) handlePlaceBid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errRes := requireSessionID(request)
	if errRes != nil {
		return errRes, nil
	}
	apiKey, err := request.RequireString(argAPIKey)
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	who, errRes := s.identify(ctx, apiKey)
	if errRes != nil {
		return errRes, nil
	}
	if !who.IsTeam() {
		return toolError("unauthorized", "place_bid needs a team api_key"), nil
	}
	amount, errRes := requireAmount(request)
	if errRes != nil {
		return errRes, nil
	}

	res, err := s.coord.Submit(ctx, sessionID, who, runtime.Intent{
		Kind:      runtime.IntentSubmitBid,
		RequestID: request.GetString(argRequestID, ""),
		Amount:    amount,
	})
	if err != nil {
		log.Debug().
			Err(err).
			Str("session_id", sessionID).
			Str("team_id", who.TeamID).
			Int64("amount", amount).
			Msg("mcp bid rejected")
		return intentError(err), nil
	}
	return toolResult(res), nil
}
