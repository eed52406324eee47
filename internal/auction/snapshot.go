package auction

import "cricket-auction/internal/ledger"

// ActiveItem is the open item with its live price.
type ActiveItem struct {
	Item
	CurrentPrice int64  `json:"current_price"`
	LeaderID     string `json:"leader,omitempty"`
	BidCount     int    `json:"bid_count"`
	Position     int    `json:"position"`
}

// Snapshot is the full authoritative state of a session. Clients rebuild
// their view from it on connect and reconnect.
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	Name            string        `json:"name,omitempty"`
	Status          SessionStatus `json:"status"`
	Phase           Phase         `json:"phase"`
	Paused          bool          `json:"paused"`
	ActiveItem      *ActiveItem   `json:"active_item,omitempty"`
	TimeRemainingMS int64         `json:"time_remaining_ms"`
	ItemDurationMS  int64         `json:"item_duration_ms"`
	BidIncrement    int64         `json:"bid_increment"`
	MinRoster       int           `json:"min_roster,omitempty"`
	ReservePrice    int64         `json:"reserve_price,omitempty"`
	ItemsRemaining  int           `json:"items_remaining"`
	Items           []Item        `json:"items"`
	Teams           []ledger.Team `json:"teams"`
	RecentBids      []ledger.Bid  `json:"recent_bids"`
	LastResolved    *ItemResolved `json:"last_resolved,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:       e.sessionID,
		Name:            e.name,
		Status:          e.status,
		Phase:           e.phase,
		Paused:          e.paused,
		TimeRemainingMS: e.TimeRemaining().Milliseconds(),
		ItemDurationMS:  e.rules.ItemDuration.Milliseconds(),
		BidIncrement:    e.rules.BidIncrement,
		MinRoster:       e.rules.MinRoster,
		ReservePrice:    e.rules.ReservePrice,
		ItemsRemaining:  e.seq.Remaining(),
		Items:           e.seq.Items(),
		Teams:           e.budgets.Teams(),
		RecentBids:      append([]ledger.Bid(nil), e.recent...),
	}
	if item, ok := e.seq.Active(); ok {
		active := &ActiveItem{
			Item:         item,
			CurrentPrice: e.currentPrice(item),
			BidCount:     e.bids.Count(item.ID),
			Position:     e.seq.Position(),
		}
		if leader, ok := e.bids.CurrentLeader(item.ID); ok {
			active.LeaderID = leader
		}
		s.ActiveItem = active
	}
	if e.lastResolved != nil {
		res := *e.lastResolved
		s.LastResolved = &res
	}
	return s
}
