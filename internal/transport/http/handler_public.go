package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type PublicHandlers struct {
	store AdminStore
}

func NewPublicHandlers(st AdminStore) *PublicHandlers {
	return &PublicHandlers{store: st}
}

func (h *PublicHandlers) Sessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		items, err := h.store.ListSessions(r.Context(), limit, offset)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

// Results lists recorded outcomes; it works for sessions this node has
// never loaded.
func (h *PublicHandlers) Results() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricResultsQueryTotal.Add(1)
		sessionID := chi.URLParam(r, "id")
		items, err := h.store.ListOutcomes(r.Context(), sessionID)
		if err != nil {
			metricResultsQueryErrors.Add(1)
			log.Error().Err(err).Str("session_id", sessionID).Msg("list outcomes failed")
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"session_id": sessionID, "items": items})
	}
}
