package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cricket-auction/internal/auction/viewmodel"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
)

// SessionHandlers is the REST fallback for clients that cannot hold a
// websocket open. Identity comes from IdentityMiddleware.
type SessionHandlers struct {
	coord Coordinator
}

func NewSessionHandlers(coord Coordinator) *SessionHandlers {
	return &SessionHandlers{coord: coord}
}

// State returns the view for the caller's role.
func (h *SessionHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, _ := policy.IdentityFrom(r.Context())
		snap, err := h.coord.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			status, code := runtime.MapIntentError(err)
			WriteHTTPError(w, status, code)
			return
		}
		switch {
		case who.IsAdmin():
			writeJSON(w, viewmodel.BuildMonitorState(snap))
		case who.IsTeam():
			writeJSON(w, viewmodel.BuildTeamState(snap, who.TeamID))
		default:
			writeJSON(w, viewmodel.BuildPublicState(snap))
		}
	}
}

// Bid submits a bid. Rejections carry the wire reason code and never reach
// other clients.
func (h *SessionHandlers) Bid() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricIntentSubmitTotal.Add(1)
		var body struct {
			RequestID string `json:"request_id"`
			Amount    int64  `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			metricIntentSubmitErrors.Add(1)
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		who, _ := policy.IdentityFrom(r.Context())
		res, err := h.coord.Submit(r.Context(), chi.URLParam(r, "id"), who, runtime.Intent{
			Kind:      runtime.IntentSubmitBid,
			RequestID: body.RequestID,
			Amount:    body.Amount,
		})
		if err != nil {
			metricIntentSubmitErrors.Add(1)
			status, code := runtime.MapIntentError(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":      code,
				"request_id": body.RequestID,
				"amount":     body.Amount,
			})
			return
		}
		writeJSON(w, res)
	}
}
