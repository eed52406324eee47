package auction

import (
	"errors"
	"fmt"
	"time"

	"cricket-auction/internal/ledger"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultItemDuration = 60 * time.Second
	// MaxBidIncrement keeps price plus increment far from int64 overflow.
	MaxBidIncrement     = int64(1) << 40
	recentBidsLimit     = 10
)

// Engine is the state machine of one auction session. It is not safe for
// concurrent use; the owning session actor serializes every call.
type Engine struct {
	sessionID string
	name      string
	rules     Rules

	phase  Phase
	status SessionStatus
	paused bool

	seq     *Sequencer
	bids    *ledger.BidLedger
	budgets *ledger.BudgetLedger
	clock   *Clock

	recent       []ledger.Bid
	lastResolved *ItemResolved
}

// NewEngine builds an idle engine, or one paused between items when the
// setup comes from an active session. onExpire is called from the clock
// goroutine with the activation token of the countdown that ran out; the
// caller must route it back through OnClockExpire on the owning goroutine.
func NewEngine(setup Setup, clk clockwork.Clock, onExpire ExpiryFunc) (*Engine, error) {
	if setup.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidSetup)
	}
	rules := setup.Rules
	if rules.ItemDuration <= 0 {
		rules.ItemDuration = DefaultItemDuration
	}
	if rules.BidIncrement < 0 || rules.MinRegisterBudget < 0 || rules.ReservePrice < 0 || rules.MaxRoster < 0 || rules.MinRoster < 0 {
		return nil, fmt.Errorf("%w: negative rule", ErrInvalidSetup)
	}
	if rules.BidIncrement > MaxBidIncrement {
		return nil, fmt.Errorf("%w: bid increment above %d", ErrInvalidSetup, MaxBidIncrement)
	}
	phase := PhaseIdle
	status := SessionUpcoming
	switch setup.Status {
	case "", SessionUpcoming:
	case SessionActive:
		phase = PhaseItemResolving
		status = SessionActive
	default:
		return nil, fmt.Errorf("%w: session status %q", ErrInvalidSetup, setup.Status)
	}
	seq, err := NewSequencer(setup.Items)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		sessionID: setup.SessionID,
		name:      setup.Name,
		rules:     rules,
		phase:     phase,
		status:    status,
		seq:       seq,
		bids:      ledger.NewBidLedger(),
		budgets:   ledger.NewBudgetLedger(),
		clock:     NewClock(clk, onExpire),
	}
	for _, t := range setup.Teams {
		if err := e.budgets.Register(e.withDefaults(t)); err != nil {
			return nil, fmt.Errorf("%w: team %q: %w", ErrInvalidSetup, t.ID, err)
		}
	}
	for _, it := range seq.Items() {
		if it.Status == ItemSold {
			e.budgets.MarkCommitted(it.ID, it.WinnerID, it.FinalPrice)
		}
	}
	return e, nil
}

func (e *Engine) withDefaults(t ledger.Team) ledger.Team {
	if t.Remaining == 0 && t.Acquired == 0 {
		t.Remaining = t.TotalPurse
	}
	if t.MaxRoster == 0 {
		t.MaxRoster = e.rules.MaxRoster
	}
	return t
}

// RegisterTeam adds a team before the session starts.
func (e *Engine) RegisterTeam(t ledger.Team) (ledger.Team, error) {
	if e.phase != PhaseIdle {
		return ledger.Team{}, ErrRegistrationClosed
	}
	if t.TotalPurse < e.rules.MinRegisterBudget {
		return ledger.Team{}, ErrBelowMinBudget
	}
	t = e.withDefaults(t)
	if err := e.budgets.Register(t); err != nil {
		return ledger.Team{}, err
	}
	return t, nil
}

// StartSession opens the first pending item.
func (e *Engine) StartSession() (ItemAdvanced, error) {
	if e.phase != PhaseIdle {
		return ItemAdvanced{}, ErrInvalidTransition
	}
	if !e.seq.HasPending() {
		return ItemAdvanced{}, fmt.Errorf("%w: %w", ErrInvalidTransition, ErrEmptyQueue)
	}
	e.status = SessionActive
	return e.openNext(), nil
}

func (e *Engine) openNext() ItemAdvanced {
	item, _ := e.seq.Next()
	e.phase = PhaseItemOpen
	e.paused = false
	e.clock.Start(e.rules.ItemDuration)
	return ItemAdvanced{
		SessionID:      e.sessionID,
		Item:           item,
		Position:       e.seq.Position(),
		ItemsRemaining: e.seq.Remaining(),
		Duration:       e.rules.ItemDuration,
	}
}

// SubmitBid validates then applies a bid. Nothing is mutated unless every
// check passes.
func (e *Engine) SubmitBid(teamID string, amount int64) (BidAccepted, error) {
	if err := ValidateBid(e, teamID, amount); err != nil {
		return BidAccepted{}, err
	}
	item, _ := e.seq.Active()
	now := e.clock.Now()
	bid, err := e.bids.Append(item.ID, teamID, amount, now)
	if err != nil {
		if errors.Is(err, ledger.ErrNonIncreasing) {
			return BidAccepted{}, ErrStaleBid
		}
		return BidAccepted{}, err
	}
	e.clock.Reset(e.rules.ItemDuration)
	e.recordRecent(bid)
	return BidAccepted{
		SessionID:     e.sessionID,
		ItemID:        item.ID,
		TeamID:        teamID,
		Amount:        bid.Amount,
		Seq:           bid.Seq,
		TimeRemaining: e.rules.ItemDuration,
		At:            now,
	}, nil
}

func (e *Engine) recordRecent(bid ledger.Bid) {
	e.recent = append([]ledger.Bid{bid}, e.recent...)
	if len(e.recent) > recentBidsLimit {
		e.recent = e.recent[:recentBidsLimit]
	}
}

// OnClockExpire resolves the open item. Only the current clock activation
// counts; a token from a countdown that was reset or paused is stale.
func (e *Engine) OnClockExpire(activation uint64) (ItemResolved, error) {
	if e.phase != PhaseItemOpen {
		return ItemResolved{}, ErrInvalidTransition
	}
	if e.paused || activation != e.clock.Activation() {
		return ItemResolved{}, ErrStaleExpiry
	}
	e.clock.Stop()
	e.phase = PhaseItemResolving
	return e.resolveActive(false), nil
}

func (e *Engine) resolveActive(forced bool) ItemResolved {
	item, _ := e.seq.Active()
	res := ItemResolved{
		SessionID: e.sessionID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		Outcome:   OutcomeUnsold,
		BidCount:  e.bids.Count(item.ID),
		Reason:    ReasonClockExpired,
		At:        e.clock.Now(),
	}
	head, hasBid := e.bids.Head(item.ID)
	if hasBid {
		res.HighBid = head.Amount
	}
	switch {
	case forced:
		res.Reason = ReasonForced
	case hasBid:
		err := e.budgets.Commit(item.ID, head.TeamID, head.Amount)
		switch {
		case err == nil:
			res.Outcome = OutcomeSold
			res.WinnerID = head.TeamID
			res.Price = head.Amount
		case errors.Is(err, ledger.ErrDuplicateCommit):
			log.Debug().Str("session_id", e.sessionID).Str("item_id", item.ID).Msg("duplicate commit ignored")
			res.Outcome = OutcomeSold
			res.WinnerID = head.TeamID
			res.Price = head.Amount
		default:
			log.Error().Err(err).Str("session_id", e.sessionID).Str("item_id", item.ID).Str("team_id", head.TeamID).Msg("commit sale failed")
			res.Reason = "commit_failed"
		}
	}
	e.seq.Resolve(res.Outcome, res.WinnerID, res.Price)
	e.lastResolved = &res
	return res
}

// AdvanceToNextItem opens the next pending item or completes the session.
func (e *Engine) AdvanceToNextItem() (Advance, error) {
	if e.phase != PhaseItemResolving {
		return Advance{}, ErrInvalidTransition
	}
	if !e.seq.HasPending() {
		done := e.complete(ReasonQueueExhausted)
		return Advance{Complete: &done}, nil
	}
	next := e.openNext()
	return Advance{Next: &next}, nil
}

// ForceEnd ends the session from any non-terminal phase. An open item is
// marked unsold whatever its bids.
func (e *Engine) ForceEnd() (ForcedEnd, error) {
	if e.phase == PhaseSessionComplete {
		return ForcedEnd{}, ErrInvalidTransition
	}
	var out ForcedEnd
	e.clock.Stop()
	if e.phase == PhaseItemOpen {
		res := e.resolveActive(true)
		out.Resolved = &res
	}
	out.Complete = e.complete(ReasonForced)
	return out, nil
}

func (e *Engine) complete(reason string) SessionCompletion {
	e.clock.Stop()
	e.phase = PhaseSessionComplete
	e.status = SessionCompleted
	e.paused = false
	sold, unsold, pending := e.seq.Counts()
	return SessionCompletion{
		SessionID: e.sessionID,
		Reason:    reason,
		Sold:      sold,
		Unsold:    unsold,
		Pending:   pending,
	}
}

// Pause freezes the open item's clock; bids are refused until Resume.
func (e *Engine) Pause() (time.Duration, error) {
	if e.phase != PhaseItemOpen || e.paused {
		return 0, ErrInvalidTransition
	}
	e.clock.Pause()
	e.paused = true
	return e.clock.Remaining(), nil
}

func (e *Engine) Resume() (time.Duration, error) {
	if e.phase != PhaseItemOpen || !e.paused {
		return 0, ErrInvalidTransition
	}
	e.clock.Resume()
	e.paused = false
	return e.clock.Remaining(), nil
}

// Close stops the clock. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.clock.Stop()
}

func (e *Engine) currentPrice(item Item) int64 {
	if price, ok := e.bids.CurrentPrice(item.ID); ok {
		return price
	}
	return item.BasePrice
}

func (e *Engine) SessionID() string     { return e.sessionID }
func (e *Engine) Phase() Phase          { return e.phase }
func (e *Engine) Status() SessionStatus { return e.status }
func (e *Engine) Paused() bool          { return e.paused }
func (e *Engine) Rules() Rules          { return e.rules }

func (e *Engine) TimeRemaining() time.Duration {
	if e.phase != PhaseItemOpen {
		return 0
	}
	return e.clock.Remaining()
}

func (e *Engine) Team(teamID string) (ledger.Team, bool) {
	return e.budgets.Team(teamID)
}

// Bids returns the bid history of an item, most recent first.
func (e *Engine) Bids(itemID string) []ledger.Bid {
	var out []ledger.Bid
	for b := range e.bids.History(itemID) {
		out = append(out, b)
	}
	return out
}

// ReplayCommit re-applies a sale to the budget ledger. Replays of an item
// already committed are ignored.
func (e *Engine) ReplayCommit(res ItemResolved) bool {
	if res.Outcome != OutcomeSold {
		return false
	}
	err := e.budgets.Commit(res.ItemID, res.WinnerID, res.Price)
	if errors.Is(err, ledger.ErrDuplicateCommit) {
		log.Debug().Str("session_id", e.sessionID).Str("item_id", res.ItemID).Msg("duplicate commit ignored")
	}
	return err == nil
}
