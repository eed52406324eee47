package runtime

import (
	"context"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/stream"
	"cricket-auction/internal/ledger"

	"github.com/jonboulle/clockwork"
)

type IntentKind string

const (
	IntentSubmitBid    IntentKind = "submit_bid"
	IntentStartSession IntentKind = "start_session"
	IntentAdvanceItem  IntentKind = "advance_item"
	IntentForceEnd     IntentKind = "force_end"
	IntentPause        IntentKind = "pause"
	IntentResume       IntentKind = "resume"
	IntentRegisterTeam IntentKind = "register_team"
)

func (k IntentKind) Valid() bool {
	switch k {
	case IntentSubmitBid, IntentStartSession, IntentAdvanceItem, IntentForceEnd, IntentPause, IntentResume, IntentRegisterTeam:
		return true
	}
	return false
}

// Intent is a client request. Clients never send state, only intents.
type Intent struct {
	Kind      IntentKind   `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	Amount    int64        `json:"amount,omitempty"`
	Team      *ledger.Team `json:"team,omitempty"`
}

// Result is returned to the sender only.
type Result struct {
	Intent          IntentKind                 `json:"intent"`
	RequestID       string                     `json:"request_id,omitempty"`
	Accepted        bool                       `json:"accepted"`
	Reason          string                     `json:"reason,omitempty"`
	Duplicate       bool                       `json:"duplicate,omitempty"`
	Bid             *auction.BidAccepted       `json:"bid,omitempty"`
	Advanced        *auction.ItemAdvanced      `json:"item_advanced,omitempty"`
	Resolved        *auction.ItemResolved      `json:"item_resolved,omitempty"`
	Completed       *auction.SessionCompletion `json:"session_complete,omitempty"`
	Team            *ledger.Team               `json:"team,omitempty"`
	TimeRemainingMS int64                      `json:"time_remaining_ms,omitempty"`
}

// SetupSource supplies the item queue and team budgets when a session is
// first opened. It is never consulted mid-bid.
type SetupSource interface {
	LoadSessionSetup(ctx context.Context, sessionID string) (auction.Setup, error)
}

type SetupSourceFunc func(ctx context.Context, sessionID string) (auction.Setup, error)

func (f SetupSourceFunc) LoadSessionSetup(ctx context.Context, sessionID string) (auction.Setup, error) {
	return f(ctx, sessionID)
}

// ResultSink records final outcomes. Calls happen after the state change is
// visible and never block the session.
type ResultSink interface {
	RecordOutcome(ctx context.Context, res auction.ItemResolved) error
	RecordSessionStatus(ctx context.Context, sessionID string, status auction.SessionStatus) error
	RecordRegistration(ctx context.Context, sessionID string, team ledger.Team) error
}

type SessionMeta struct {
	SessionID string
	Name      string
}

type SessionLifecycleObserver interface {
	OnSessionOpened(meta SessionMeta, buf *stream.EventBuffer)
	OnSessionClosed(sessionID string)
}

type Options struct {
	Clock            clockwork.Clock
	DefaultRules     auction.Rules
	AutoAdvance      time.Duration
	ClockTick        time.Duration
	BufferSize       int
	RequestCacheSize int
	Retention        time.Duration
	SinkRetries      int
	SinkRetryBase    time.Duration
	SinkTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 500
	}
	if o.RequestCacheSize <= 0 {
		o.RequestCacheSize = 1024
	}
	if o.Retention <= 0 {
		o.Retention = 30 * time.Minute
	}
	if o.SinkRetries <= 0 {
		o.SinkRetries = 3
	}
	if o.SinkRetryBase <= 0 {
		o.SinkRetryBase = 200 * time.Millisecond
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = 5 * time.Second
	}
	return o
}

// mergeRules only fills the item duration. The other knobs are stored per
// session with the server defaults already applied, and zero is a real value.
func mergeRules(r, defaults auction.Rules) auction.Rules {
	if r.ItemDuration <= 0 {
		r.ItemDuration = defaults.ItemDuration
	}
	return r
}
