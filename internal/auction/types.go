package auction

import (
	"time"

	"cricket-auction/internal/ledger"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseItemOpen        Phase = "item_open"
	PhaseItemResolving   Phase = "item_resolving"
	PhaseSessionComplete Phase = "session_complete"
)

type SessionStatus string

const (
	SessionUpcoming  SessionStatus = "upcoming"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemActive  ItemStatus = "active"
	ItemSold    ItemStatus = "sold"
	ItemUnsold  ItemStatus = "unsold"
)

type Outcome string

const (
	OutcomeSold   Outcome = "sold"
	OutcomeUnsold Outcome = "unsold"
)

const (
	ReasonClockExpired   = "clock_expired"
	ReasonForced         = "forced"
	ReasonQueueExhausted = "queue_exhausted"
)

// Item is one auctionable player.
type Item struct {
	ID         string     `json:"item_id"`
	Name       string     `json:"name"`
	Role       string     `json:"role,omitempty"`
	BasePrice  int64      `json:"base_price"`
	Status     ItemStatus `json:"status"`
	WinnerID   string     `json:"winner_team_id,omitempty"`
	FinalPrice int64      `json:"final_price,omitempty"`
}

func (it Item) Resolved() bool {
	return it.Status == ItemSold || it.Status == ItemUnsold
}

// Rules are the per-session knobs.
type Rules struct {
	ItemDuration      time.Duration
	BidIncrement      int64
	MinRegisterBudget int64
	MaxRoster         int
	MinRoster         int
	ReservePrice      int64
}

// Setup is everything the engine needs to run a session. Items already
// resolved (from a previous run) are kept as they are and never reopened.
// Status is the stored session status; an active session resumes between
// items, and its next item opens on AdvanceToNextItem.
type Setup struct {
	SessionID string
	Name      string
	Status    SessionStatus
	Rules     Rules
	Items     []Item
	Teams     []ledger.Team
}

type BidAccepted struct {
	SessionID     string        `json:"session_id"`
	ItemID        string        `json:"item_id"`
	TeamID        string        `json:"leader"`
	Amount        int64         `json:"price"`
	Seq           int64         `json:"seq"`
	TimeRemaining time.Duration `json:"-"`
	At            time.Time     `json:"at"`
}

// ItemResolved is the terminal outcome of one item.
type ItemResolved struct {
	SessionID string    `json:"session_id"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Outcome   Outcome   `json:"outcome"`
	WinnerID  string    `json:"winner,omitempty"`
	Price     int64     `json:"price"`
	HighBid   int64     `json:"high_bid,omitempty"`
	BidCount  int       `json:"bid_count"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

type ItemAdvanced struct {
	SessionID      string        `json:"session_id"`
	Item           Item          `json:"item"`
	Position       int           `json:"position"`
	ItemsRemaining int           `json:"items_remaining"`
	Duration       time.Duration `json:"-"`
}

type SessionCompletion struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Sold      int    `json:"sold"`
	Unsold    int    `json:"unsold"`
	Pending   int    `json:"pending"`
}

// Advance is the result of AdvanceToNextItem: exactly one field is set.
type Advance struct {
	Next     *ItemAdvanced
	Complete *SessionCompletion
}

// ForcedEnd carries the forced unsold resolution (nil when no item was open)
// and the completion.
type ForcedEnd struct {
	Resolved *ItemResolved
	Complete SessionCompletion
}
