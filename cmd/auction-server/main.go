package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/config"
	"cricket-auction/internal/eventbus/natsbus"
	"cricket-auction/internal/eventbus/redismirror"
	"cricket-auction/internal/logging"
	"cricket-auction/internal/mcpserver"
	"cricket-auction/internal/resultpush"
	"cricket-auction/internal/spectatorgateway"
	"cricket-auction/internal/store"
	httptransport "cricket-auction/internal/transport/http"
	"cricket-auction/internal/ws"
)

func main() {
	appCfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(appCfg.Log); err != nil {
		panic(err)
	}
	cfg := appCfg.Server

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	coord := runtime.NewCoordinator(setupSource(st), runtimeOptions(cfg))
	coord.AddSink(st)

	if cfg.NATSURL != "" {
		pub, err := natsbus.Connect(ctx, natsbus.DefaultConfig(cfg.NATSURL))
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer pub.Close()
		coord.AddSink(pub)
	}

	var cache spectatorgateway.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb, err := redismirror.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		mirror := redismirror.New(rdb, cfg.SessionRetention())
		defer mirror.Close()
		coord.AddObserver(mirror)
		cache = mirror
	}

	pushCfg, err := resultpush.ConfigFromServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("result push config failed")
	}
	pusher := resultpush.NewManager(pushCfg)
	if err := pusher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("result push start failed")
	}
	coord.AddObserver(pusher)

	coord.StartJanitor(ctx, time.Minute)

	auth := policy.KeyAuthenticator{AdminKey: cfg.AdminAPIKey, Teams: st, AllowAnonymous: cfg.WSAllowAnonymous}
	wsServer := ws.NewServer(coord, auth)
	mcp := mcpserver.New(coord, auth, st)

	r := httptransport.NewRouter(cfg, httptransport.Deps{
		Store: st,
		Coord: coord,
		Auth:  auth,
		Cache: cache,
		WS:    wsServer.HandleWS,
		MCP:   mcp.Handler(),
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	coord.Shutdown(shutdownCtx)
}

// setupSource maps store lookups onto the runtime's session errors.
func setupSource(st *store.Store) runtime.SetupSource {
	return runtime.SetupSourceFunc(func(ctx context.Context, sessionID string) (auction.Setup, error) {
		setup, err := st.LoadSessionSetup(ctx, sessionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return auction.Setup{}, runtime.ErrSessionNotFound
		case errors.Is(err, store.ErrSessionCompleted):
			return auction.Setup{}, runtime.ErrSessionClosed
		}
		return setup, err
	})
}

func runtimeOptions(cfg config.ServerConfig) runtime.Options {
	return runtime.Options{
		DefaultRules: auction.Rules{
			ItemDuration:      cfg.ItemDuration(),
			BidIncrement:      cfg.BidIncrement,
			MinRegisterBudget: cfg.MinRegisterBudget,
			MaxRoster:         cfg.MaxRoster,
			MinRoster:         cfg.MinRoster,
			ReservePrice:      cfg.ReservePrice,
		},
		AutoAdvance:      cfg.AutoAdvance(),
		ClockTick:        cfg.ClockTick(),
		BufferSize:       cfg.EventBufferSize,
		RequestCacheSize: cfg.RequestIDCacheSize,
		Retention:        cfg.SessionRetention(),
	}
}
