package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/auction/viewmodel"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
)

// Coordinator is the slice of the bid runtime the tools drive.
type Coordinator interface {
	Snapshot(ctx context.Context, sessionID string) (auction.Snapshot, error)
	Submit(ctx context.Context, sessionID string, who policy.Identity, in runtime.Intent) (runtime.Result, error)
}

// OutcomeLister serves recorded results, including sessions no longer in memory.
type OutcomeLister interface {
	ListOutcomes(ctx context.Context, sessionID string) ([]auction.ItemResolved, error)
}

type Server struct {
	coord    Coordinator
	auth     policy.Authenticator
	outcomes OutcomeLister

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New registers the bidding tools. outcomes may be nil, in which case
// list_results is not offered.
func New(coord Coordinator, auth policy.Authenticator, outcomes OutcomeLister) *Server {
	mcpSrv := server.NewMCPServer(
		"cricket-auction",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		coord:      coord,
		auth:       auth,
		outcomes:   outcomes,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerStateTools()
	s.registerBidTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"auction://{session_id}/public_state",
			"auction_public_state",
			mcp.WithTemplateDescription("Public auction state by session id"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			if !strings.HasPrefix(raw, "auction://") || !strings.HasSuffix(raw, "/public_state") {
				return nil, nil
			}
			sessionID := strings.TrimSuffix(strings.TrimPrefix(raw, "auction://"), "/public_state")
			if sessionID == "" {
				return nil, nil
			}
			snap, err := s.coord.Snapshot(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(viewmodel.BuildPublicState(snap))
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}

// identify resolves the caller. A missing key is a spectator.
func (s *Server) identify(ctx context.Context, apiKey string) (policy.Identity, *mcp.CallToolResult) {
	who, err := s.auth.Authenticate(ctx, strings.TrimSpace(apiKey))
	if err != nil {
		return policy.Identity{}, toolError("unauthorized", "invalid api_key")
	}
	return who, nil
}
