package httptransport

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
	"cricket-auction/internal/config"
	"cricket-auction/internal/spectatorgateway"
)

// Coordinator is the bid runtime as the HTTP layer uses it.
type Coordinator interface {
	Open(ctx context.Context, sessionID string) (*stream.EventBuffer, error)
	Snapshot(ctx context.Context, sessionID string) (auction.Snapshot, error)
	Submit(ctx context.Context, sessionID string, who policy.Identity, in runtime.Intent) (runtime.Result, error)
	Buffer(sessionID string) *stream.EventBuffer
	Reload(ctx context.Context, sessionID, reason string)
}

type Deps struct {
	Store AdminStore
	Coord Coordinator
	Auth  policy.Authenticator
	// Cache serves public state for sessions owned by another node. Optional.
	Cache spectatorgateway.SnapshotCache
	WS    http.HandlerFunc
	MCP   http.Handler
}

func NewRouter(cfg config.ServerConfig, deps Deps) *chi.Mux {
	adminHandlers := NewAdminHandlers(deps.Store, deps.Coord, cfg)
	sessionHandlers := NewSessionHandlers(deps.Coord)
	publicHandlers := NewPublicHandlers(deps.Store)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if deps.WS != nil {
		r.With(APILogMiddleware()).Get("/ws", deps.WS)
	}
	if deps.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", deps.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", deps.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", deps.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())

		r.Route("/public", func(r chi.Router) {
			r.Get("/sessions", publicHandlers.Sessions())
			r.Get("/sessions/{id}/events", spectatorgateway.EventsHandler(deps.Coord))
			r.Get("/sessions/{id}/state", spectatorgateway.StateHandler(deps.Coord, deps.Cache))
			r.Get("/sessions/{id}/results", publicHandlers.Results())
		})

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware(deps.Auth))
			r.Get("/sessions/{id}/state", sessionHandlers.State())
			r.Get("/sessions/{id}/events", spectatorgateway.EventsHandler(deps.Coord))
			r.With(BodyCaptureMiddleware(4096)).Post("/sessions/{id}/bids", sessionHandlers.Bid())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Use(BodyCaptureMiddleware(4096))
			r.Post("/sessions", adminHandlers.CreateSession())
			r.Get("/sessions", adminHandlers.ListSessions())
			r.Post("/teams", adminHandlers.CreateTeam())
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Post("/start", adminHandlers.Intent(runtime.IntentStartSession))
				r.Post("/advance", adminHandlers.Intent(runtime.IntentAdvanceItem))
				r.Post("/pause", adminHandlers.Intent(runtime.IntentPause))
				r.Post("/resume", adminHandlers.Intent(runtime.IntentResume))
				r.Post("/end", adminHandlers.Intent(runtime.IntentForceEnd))
				r.Post("/teams", adminHandlers.RegisterTeam())
				r.Post("/items", adminHandlers.AddItem())
				r.Get("/monitor", adminHandlers.Monitor())
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
