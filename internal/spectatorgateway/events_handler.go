package spectatorgateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
)

var pingInterval = 15 * time.Second

// EventSource opens (or reuses) the broadcast buffer of a session.
type EventSource interface {
	Open(ctx context.Context, sessionID string) (*stream.EventBuffer, error)
}

// EventsHandler streams a session's broadcast events as SSE. Reconnecting
// clients send Last-Event-ID and get only what they missed.
func EventsHandler(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		buf, err := src.Open(r.Context(), sessionID)
		if err != nil {
			status, code := runtime.MapIntentError(err)
			writeError(w, status, code)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		metricSpectatorSSEConnectionsTotal.Add(1)
		metricSpectatorSSEConnectionsActive.Add(1)
		defer metricSpectatorSSEConnectionsActive.Add(-1)

		ch := buf.Subscribe()
		defer buf.Unsubscribe(ch)

		stream.SetSSEHeaders(w)
		lastEventID := r.Header.Get("Last-Event-ID")
		if lastEventID == "" {
			lastEventID = r.URL.Query().Get("last_event_id")
		}
		var sent int64
		for _, ev := range buf.ReplayAfter(lastEventID) {
			if err := stream.WriteSSE(w, ev); err != nil {
				return
			}
			sent = eventSeq(ev.EventID)
		}
		flusher.Flush()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				// Already delivered by the replay above.
				if eventSeq(ev.EventID) <= sent {
					continue
				}
				if err := stream.WriteSSE(w, ev); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if err := stream.WriteSSE(w, stream.PingEvent(sessionID, buf.Now().UnixMilli())); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func eventSeq(id string) int64 {
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}
