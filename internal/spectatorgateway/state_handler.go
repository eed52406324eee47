package spectatorgateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/auction/viewmodel"
	"cricket-auction/internal/bidgateway/runtime"
)

type StateSource interface {
	Snapshot(ctx context.Context, sessionID string) (auction.Snapshot, error)
}

// SnapshotCache holds the last public state published by any node.
type SnapshotCache interface {
	LatestSnapshot(ctx context.Context, sessionID string) ([]byte, error)
}

// StateHandler serves the public state. When this node has no runtime for
// the session it falls back to the cached copy, if one is configured.
func StateHandler(states StateSource, cache SnapshotCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id_required")
			return
		}
		snap, err := states.Snapshot(r.Context(), sessionID)
		if err != nil {
			if cache != nil && runtime.IsSessionNotFound(err) {
				if raw, cerr := cache.LatestSnapshot(r.Context(), sessionID); cerr == nil && len(raw) > 0 {
					metricSpectatorStateCacheHits.Add(1)
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-State-Source", "cache")
					_, _ = w.Write(raw)
					return
				} else if cerr != nil {
					log.Debug().Err(cerr).Str("session_id", sessionID).Msg("snapshot cache miss")
				}
			}
			status, code := runtime.MapIntentError(err)
			writeError(w, status, code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(viewmodel.BuildPublicState(snap))
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}
