package main

import (
	"encoding/json"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/config"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// teamView is the subset of the team snapshot the bidder reads.
type teamView struct {
	Phase      string `json:"phase"`
	Paused     bool   `json:"paused"`
	MinNextBid int64  `json:"min_next_bid"`
	IsLeader   bool   `json:"is_leader"`
	CanBid     bool   `json:"can_bid"`
	ActiveItem *struct {
		ItemID       string `json:"item_id"`
		CurrentPrice int64  `json:"current_price"`
	} `json:"active_item"`
	MyTeam *struct {
		Remaining int64 `json:"remaining_budget"`
	} `json:"my_team"`
}

type outbound struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("load bot config failed")
	}
	if cfg.SessionID == "" || cfg.APIKey == "" {
		log.Fatal().Msg("SESSION_ID and API_KEY are required")
	}

	u, err := url.Parse(cfg.WSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("bad WS_URL")
	}
	q := u.Query()
	q.Set("session_id", cfg.SessionID)
	q.Set("token", cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial failed")
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("connection closed")
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "snapshot":
			var view teamView
			if err := json.Unmarshal(msg.Data, &view); err != nil {
				continue
			}
			amount, ok := decide(view, cfg.Step, cfg.MaxPrice)
			if !ok {
				continue
			}
			send(conn, outbound{Type: "submit_bid", RequestID: uuid.NewString(), Amount: amount})
			log.Info().Int64("amount", amount).Str("item_id", view.ActiveItem.ItemID).Msg("bid sent")
		case "item_advanced", "bid_accepted", "session_resumed":
			// Deltas carry no team-private fields; ask for a fresh view.
			send(conn, outbound{Type: "sync"})
		case "bid_rejected":
			log.Debug().RawJSON("data", msg.Data).Msg("bid rejected")
		case "session_complete":
			log.Info().RawJSON("data", msg.Data).Msg("session complete")
			return
		}
	}
}

func send(conn *websocket.Conn, msg outbound) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("write failed")
	}
}

// decide bids the minimum allowed, or the current price plus step, while
// the price stays under maxPrice. A zero maxPrice means no cap.
func decide(v teamView, step, maxPrice int64) (int64, bool) {
	if v.Phase != "item_open" || v.Paused || v.ActiveItem == nil || v.IsLeader || !v.CanBid {
		return 0, false
	}
	amount := v.MinNextBid
	if step > 0 && v.ActiveItem.CurrentPrice+step > amount {
		amount = v.ActiveItem.CurrentPrice + step
	}
	if maxPrice > 0 && amount > maxPrice {
		return 0, false
	}
	if v.MyTeam != nil && amount > v.MyTeam.Remaining {
		return 0, false
	}
	return amount, true
}
