package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/auction/viewmodel"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/config"
	"cricket-auction/internal/ledger"
	"cricket-auction/internal/store"
)

// AdminStore is the persistence the admin API needs.
type AdminStore interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, name string, rules auction.Rules, items []auction.Item) (store.Session, error)
	AddItem(ctx context.Context, sessionID string, it auction.Item) error
	ListSessions(ctx context.Context, limit, offset int) ([]store.Session, error)
	CreateTeam(ctx context.Context, name string) (store.Team, string, error)
	GetTeam(ctx context.Context, id string) (*store.Team, error)
	ListOutcomes(ctx context.Context, sessionID string) ([]auction.ItemResolved, error)
}

type AdminHandlers struct {
	store AdminStore
	coord Coordinator
	cfg   config.ServerConfig
}

func NewAdminHandlers(st AdminStore, coord Coordinator, cfg config.ServerConfig) *AdminHandlers {
	return &AdminHandlers{store: st, coord: coord, cfg: cfg}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "db": "up"})
	}
}

type itemRequest struct {
	ID        string `json:"item_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	BasePrice int64  `json:"base_price"`
}

func (it itemRequest) toItem() (auction.Item, bool) {
	name := strings.TrimSpace(it.Name)
	if name == "" || it.BasePrice < 0 {
		return auction.Item{}, false
	}
	return auction.Item{ID: strings.TrimSpace(it.ID), Name: name, Role: strings.TrimSpace(it.Role), BasePrice: it.BasePrice}, true
}

type createSessionRequest struct {
	Name                string        `json:"name"`
	ItemDurationSeconds int           `json:"item_duration_seconds"`
	BidIncrement        *int64        `json:"bid_increment"`
	MinRegisterBudget   *int64        `json:"min_register_budget"`
	MaxRoster           *int          `json:"max_roster"`
	MinRoster           *int          `json:"min_roster"`
	ReservePrice        *int64        `json:"reserve_price"`
	Items               []itemRequest `json:"items"`
}

// rules fills unset knobs from the server defaults.
func (req createSessionRequest) rules(cfg config.ServerConfig) auction.Rules {
	rules := auction.Rules{
		ItemDuration:      cfg.ItemDuration(),
		BidIncrement:      cfg.BidIncrement,
		MinRegisterBudget: cfg.MinRegisterBudget,
		MaxRoster:         cfg.MaxRoster,
		MinRoster:         cfg.MinRoster,
		ReservePrice:      cfg.ReservePrice,
	}
	if req.ItemDurationSeconds > 0 {
		rules.ItemDuration = time.Duration(req.ItemDurationSeconds) * time.Second
	}
	if req.BidIncrement != nil {
		rules.BidIncrement = *req.BidIncrement
	}
	if req.MinRegisterBudget != nil {
		rules.MinRegisterBudget = *req.MinRegisterBudget
	}
	if req.MaxRoster != nil {
		rules.MaxRoster = *req.MaxRoster
	}
	if req.MinRoster != nil {
		rules.MinRoster = *req.MinRoster
	}
	if req.ReservePrice != nil {
		rules.ReservePrice = *req.ReservePrice
	}
	return rules
}

func validRules(r auction.Rules) bool {
	if r.ItemDuration <= 0 || r.BidIncrement < 0 || r.BidIncrement > auction.MaxBidIncrement || r.MinRegisterBudget < 0 || r.ReservePrice < 0 {
		return false
	}
	if r.MaxRoster < 0 || r.MinRoster < 0 {
		return false
	}
	return r.MaxRoster == 0 || r.MinRoster <= r.MaxRoster
}

func (h *AdminHandlers) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricSessionCreateTotal.Add(1)
		var body createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			metricSessionCreateErrors.Add(1)
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		body.Name = strings.TrimSpace(body.Name)
		rules := body.rules(h.cfg)
		if body.Name == "" || !validRules(rules) {
			metricSessionCreateErrors.Add(1)
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		items := make([]auction.Item, 0, len(body.Items))
		for _, raw := range body.Items {
			it, ok := raw.toItem()
			if !ok {
				metricSessionCreateErrors.Add(1)
				WriteHTTPError(w, http.StatusBadRequest, "invalid_item")
				return
			}
			items = append(items, it)
		}
		sess, err := h.store.CreateSession(r.Context(), body.Name, rules, items)
		if err != nil {
			metricSessionCreateErrors.Add(1)
			if errors.Is(err, store.ErrDuplicate) {
				WriteHTTPError(w, http.StatusConflict, "duplicate_item")
				return
			}
			log.Error().Err(err).Msg("create session failed")
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		log.Info().Str("session_id", sess.ID).Int("items", len(items)).Msg("auction session created")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "session": sess})
	}
}

func (h *AdminHandlers) ListSessions() http.HandlerFunc {
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

// CreateTeam returns the team's API key. It is shown only here.
func (h *AdminHandlers) CreateTeam() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		team, key, err := h.store.CreateTeam(r.Context(), body.Name)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "team": team, "api_key": key})
	}
}

// AddItem appends a player to a session that has not started. A session
// already loaded by the runtime is reloaded so the new item is queued.
func (h *AdminHandlers) AddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		var body itemRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		it, ok := body.toItem()
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_item")
			return
		}
		if h.coord.Buffer(sessionID) != nil {
			snap, err := h.coord.Snapshot(r.Context(), sessionID)
			if err == nil && snap.Status != auction.SessionUpcoming {
				WriteHTTPError(w, http.StatusConflict, "invalid_transition")
				return
			}
		}
		if err := h.store.AddItem(r.Context(), sessionID, it); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			case errors.Is(err, auction.ErrInvalidTransition):
				WriteHTTPError(w, http.StatusConflict, "invalid_transition")
			case errors.Is(err, store.ErrDuplicate):
				WriteHTTPError(w, http.StatusConflict, "duplicate_item")
			default:
				WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		h.coord.Reload(r.Context(), sessionID, "setup_changed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

// RegisterTeam enters an existing team into a session with a purse. It goes
// through the session actor so the registration rules apply.
func (h *AdminHandlers) RegisterTeam() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		var body struct {
			TeamID     string `json:"team_id"`
			TotalPurse int64  `json:"total_purse"`
			MaxRoster  *int   `json:"max_roster"`
			RequestID  string `json:"request_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		team, err := h.store.GetTeam(r.Context(), strings.TrimSpace(body.TeamID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "team_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		entry := ledger.Team{ID: team.ID, Name: team.Name, TotalPurse: body.TotalPurse, MaxRoster: h.cfg.MaxRoster}
		if body.MaxRoster != nil {
			entry.MaxRoster = *body.MaxRoster
		}
		h.submit(w, r, sessionID, runtime.Intent{Kind: runtime.IntentRegisterTeam, RequestID: body.RequestID, Team: &entry})
	}
}

// Intent drives the session lifecycle: start, advance, pause, resume, end.
func (h *AdminHandlers) Intent(kind runtime.IntentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RequestID string `json:"request_id"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
				return
			}
		}
		h.submit(w, r, chi.URLParam(r, "id"), runtime.Intent{Kind: kind, RequestID: body.RequestID})
	}
}

func (h *AdminHandlers) submit(w http.ResponseWriter, r *http.Request, sessionID string, in runtime.Intent) {
	metricIntentSubmitTotal.Add(1)
	who, ok := policy.IdentityFrom(r.Context())
	if !ok {
		who = policy.Spectator()
	}
	res, err := h.coord.Submit(r.Context(), sessionID, who, in)
	if err != nil {
		metricIntentSubmitErrors.Add(1)
		status, code := runtime.MapIntentError(err)
		WriteHTTPError(w, status, code)
		return
	}
	writeJSON(w, res)
}

func (h *AdminHandlers) Monitor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.coord.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			status, code := runtime.MapIntentError(err)
			WriteHTTPError(w, status, code)
			return
		}
		writeJSON(w, viewmodel.BuildMonitorState(snap))
	}
}
