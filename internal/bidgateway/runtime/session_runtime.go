package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/stream"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const inboxSize = 64

type commandKind int

const (
	cmdIntent commandKind = iota
	cmdExpire
	cmdSnapshot
)

type command struct {
	kind       commandKind
	who        policy.Identity
	intent     Intent
	activation uint64
	reply      chan reply
}

type reply struct {
	res    Result
	snap   auction.Snapshot
	cursor string
	err    error
}

// sessionRuntime is the single writer of one session. Bids, admin controls,
// clock expiry and snapshot reads all pass through inbox in receipt order.
type sessionRuntime struct {
	coord  *Coordinator
	id     string
	name   string
	engine *auction.Engine
	buffer *stream.EventBuffer
	clock  clockwork.Clock
	opts   Options

	inbox    chan command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	reason   string

	requests     *requestCache
	ticker       clockwork.Ticker
	advanceTimer clockwork.Timer

	sinkJobs  chan sinkJob
	sinksDone chan struct{}

	completedAt atomic.Int64
}

func newSessionRuntime(c *Coordinator, setup auction.Setup) (*sessionRuntime, error) {
	rt := &sessionRuntime{
		coord:     c,
		id:        setup.SessionID,
		name:      setup.Name,
		buffer:    stream.NewEventBufferWithClock(c.opts.BufferSize, c.clock),
		clock:     c.clock,
		opts:      c.opts,
		inbox:     make(chan command, inboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		requests:  newRequestCache(c.opts.RequestCacheSize),
		sinkJobs:  make(chan sinkJob, 256),
		sinksDone: make(chan struct{}),
	}
	engine, err := auction.NewEngine(setup, c.clock, rt.onExpire)
	if err != nil {
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

func (rt *sessionRuntime) start() {
	// A session reopened mid-auction sits between items; auto advance picks
	// it up the same way it would after a resolution.
	if rt.engine.Phase() == auction.PhaseItemResolving && rt.opts.AutoAdvance > 0 {
		rt.advanceTimer = rt.clock.NewTimer(rt.opts.AutoAdvance)
	}
	go rt.runSinks()
	go rt.run()
}

func (rt *sessionRuntime) stop(reason string) {
	rt.stopOnce.Do(func() {
		rt.reason = reason
		close(rt.quit)
	})
}

// onExpire runs on the clock goroutine and turns the expiry into an intent.
func (rt *sessionRuntime) onExpire(activation uint64) {
	select {
	case rt.inbox <- command{kind: cmdExpire, activation: activation}:
	case <-rt.quit:
	}
}

func (rt *sessionRuntime) run() {
	defer close(rt.done)
	for {
		var tickC, advanceC <-chan time.Time
		if rt.ticker != nil {
			tickC = rt.ticker.Chan()
		}
		if rt.advanceTimer != nil {
			advanceC = rt.advanceTimer.Chan()
		}
		select {
		case <-rt.quit:
			rt.shutdown()
			return
		case cmd := <-rt.inbox:
			rt.handle(cmd)
		case <-tickC:
			rt.emitClockTick()
		case <-advanceC:
			rt.advanceTimer = nil
			rt.autoAdvance()
		}
	}
}

func (rt *sessionRuntime) shutdown() {
	rt.engine.Close()
	rt.stopTicker()
	rt.cancelAutoAdvance()
	reason := rt.reason
	if reason == "" {
		reason = "closed"
	}
	rt.buffer.Append("session_closed", rt.id, map[string]any{"reason": reason})
	rt.buffer.Close()
	close(rt.sinkJobs)
}

func (rt *sessionRuntime) submit(ctx context.Context, who policy.Identity, in Intent) (Result, error) {
	cmd := command{kind: cmdIntent, who: who, intent: in, reply: make(chan reply, 1)}
	r, err := rt.call(ctx, cmd)
	if err != nil {
		return Result{Intent: in.Kind, RequestID: in.RequestID, Reason: ReasonCode(err)}, err
	}
	return r.res, r.err
}

func (rt *sessionRuntime) snapshot(ctx context.Context) (auction.Snapshot, string, error) {
	r, err := rt.call(ctx, command{kind: cmdSnapshot, reply: make(chan reply, 1)})
	if err != nil {
		return auction.Snapshot{}, "", err
	}
	return r.snap, r.cursor, nil
}

func (rt *sessionRuntime) call(ctx context.Context, cmd command) (reply, error) {
	select {
	case rt.inbox <- cmd:
	case <-rt.quit:
		return reply{}, ErrSessionClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-rt.done:
		return reply{}, ErrSessionClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (rt *sessionRuntime) handle(cmd command) {
	switch cmd.kind {
	case cmdExpire:
		rt.handleExpire(cmd.activation)
	case cmdSnapshot:
		cmd.reply <- reply{snap: rt.engine.Snapshot(), cursor: rt.buffer.LastEventID()}
	case cmdIntent:
		cmd.reply <- rt.handleIntent(cmd.who, cmd.intent)
	}
}

func (rt *sessionRuntime) handleIntent(who policy.Identity, in Intent) reply {
	principal := who.TeamID
	if principal == "" {
		principal = string(who.Role)
	}
	key := requestKey(principal, in.RequestID)
	if key != "" {
		if prev, ok := rt.requests.get(key); ok {
			metricIntentDuplicate.Add(1)
			prev.res.Duplicate = true
			return prev
		}
	}

	res, err := rt.apply(who, in)
	res.Intent = in.Kind
	res.RequestID = in.RequestID
	res.Accepted = err == nil
	if err != nil {
		res.Reason = ReasonCode(err)
		metricIntentRejected.Add(1)
		log.Debug().
			Str("session_id", rt.id).
			Str("intent", string(in.Kind)).
			Str("team_id", who.TeamID).
			Str("reason", res.Reason).
			Msg("intent rejected")
	}
	out := reply{res: res, err: err}
	if key != "" && (err == nil || auction.Rejection(err)) {
		rt.requests.put(key, out)
	}
	return out
}

func (rt *sessionRuntime) apply(who policy.Identity, in Intent) (Result, error) {
	var res Result
	switch in.Kind {
	case IntentSubmitBid:
		acc, err := rt.engine.SubmitBid(who.TeamID, in.Amount)
		if err != nil {
			return res, err
		}
		metricBidAccepted.Add(1)
		rt.emitBidAccepted(acc)
		rt.emitPublicSnapshot()
		res.Bid = &acc
		res.TimeRemainingMS = acc.TimeRemaining.Milliseconds()
	case IntentStartSession:
		adv, err := rt.engine.StartSession()
		if err != nil {
			return res, err
		}
		rt.enqueueStatus(auction.SessionActive)
		rt.opened(adv)
		res.Advanced = &adv
		res.TimeRemainingMS = adv.Duration.Milliseconds()
	case IntentAdvanceItem:
		adv, err := rt.advance()
		if err != nil {
			return res, err
		}
		res.Advanced = adv.Next
		res.Completed = adv.Complete
	case IntentForceEnd:
		out, err := rt.engine.ForceEnd()
		if err != nil {
			return res, err
		}
		rt.stopTicker()
		rt.cancelAutoAdvance()
		if out.Resolved != nil {
			rt.resolved(*out.Resolved)
		}
		rt.completed(out.Complete)
		res.Resolved = out.Resolved
		res.Completed = &out.Complete
	case IntentPause:
		left, err := rt.engine.Pause()
		if err != nil {
			return res, err
		}
		rt.stopTicker()
		rt.emitPaused("session_paused", left)
		res.TimeRemainingMS = left.Milliseconds()
	case IntentResume:
		left, err := rt.engine.Resume()
		if err != nil {
			return res, err
		}
		rt.startTicker()
		rt.emitPaused("session_resumed", left)
		res.TimeRemainingMS = left.Milliseconds()
	case IntentRegisterTeam:
		if in.Team == nil {
			return res, ErrInvalidIntent
		}
		team, err := rt.engine.RegisterTeam(*in.Team)
		if err != nil {
			return res, err
		}
		rt.enqueue(sinkJob{kind: sinkRegistration, team: team})
		rt.buffer.Append("team_registered", rt.id, team)
		rt.emitPublicSnapshot()
		res.Team = &team
	default:
		return res, ErrInvalidIntent
	}
	return res, nil
}

func (rt *sessionRuntime) advance() (auction.Advance, error) {
	rt.cancelAutoAdvance()
	adv, err := rt.engine.AdvanceToNextItem()
	if err != nil {
		return adv, err
	}
	if adv.Next != nil {
		rt.opened(*adv.Next)
	} else if adv.Complete != nil {
		rt.completed(*adv.Complete)
	}
	return adv, nil
}

func (rt *sessionRuntime) autoAdvance() {
	if _, err := rt.advance(); err != nil && !errors.Is(err, auction.ErrInvalidTransition) {
		log.Error().Err(err).Str("session_id", rt.id).Msg("auto advance failed")
	}
}

func (rt *sessionRuntime) handleExpire(activation uint64) {
	res, err := rt.engine.OnClockExpire(activation)
	if err != nil {
		log.Debug().Err(err).Str("session_id", rt.id).Uint64("activation", activation).Msg("clock expiry ignored")
		return
	}
	rt.stopTicker()
	if rt.opts.AutoAdvance > 0 {
		rt.advanceTimer = rt.clock.NewTimer(rt.opts.AutoAdvance)
	}
	rt.resolved(res)
}

func (rt *sessionRuntime) opened(adv auction.ItemAdvanced) {
	rt.startTicker()
	rt.emitItemAdvanced(adv)
	rt.emitPublicSnapshot()
}

func (rt *sessionRuntime) resolved(res auction.ItemResolved) {
	metricItemResolved.Add(1)
	rt.emitItemResolved(res)
	rt.enqueue(sinkJob{kind: sinkOutcome, outcome: res})
	rt.emitPublicSnapshot()
	log.Info().
		Str("session_id", rt.id).
		Str("item_id", res.ItemID).
		Str("outcome", string(res.Outcome)).
		Str("winner", res.WinnerID).
		Int64("price", res.Price).
		Str("reason", res.Reason).
		Msg("item resolved")
}

func (rt *sessionRuntime) completed(done auction.SessionCompletion) {
	rt.stopTicker()
	rt.completedAt.Store(rt.clock.Now().UnixNano())
	rt.buffer.Append("session_complete", rt.id, done)
	rt.enqueueStatus(auction.SessionCompleted)
	rt.emitPublicSnapshot()
	log.Info().
		Str("session_id", rt.id).
		Str("reason", done.Reason).
		Int("sold", done.Sold).
		Int("unsold", done.Unsold).
		Msg("auction session complete")
}

func (rt *sessionRuntime) startTicker() {
	if rt.opts.ClockTick <= 0 {
		return
	}
	rt.stopTicker()
	rt.ticker = rt.clock.NewTicker(rt.opts.ClockTick)
}

func (rt *sessionRuntime) stopTicker() {
	if rt.ticker != nil {
		rt.ticker.Stop()
		rt.ticker = nil
	}
}

func (rt *sessionRuntime) cancelAutoAdvance() {
	if rt.advanceTimer != nil {
		rt.advanceTimer.Stop()
		rt.advanceTimer = nil
	}
}
