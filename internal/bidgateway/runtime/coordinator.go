package runtime

import (
	"context"
	"fmt"
	"sync"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/stream"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Coordinator owns one actor per open auction session and routes intents to
// it. All state changes of a session happen on its actor goroutine.
type Coordinator struct {
	source SetupSource
	opts   Options
	clock  clockwork.Clock

	mu        sync.Mutex
	sessions  map[string]*sessionRuntime
	sinks     []ResultSink
	observers []SessionLifecycleObserver
}

func NewCoordinator(source SetupSource, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		source:   source,
		opts:     opts,
		clock:    opts.Clock,
		sessions: map[string]*sessionRuntime{},
	}
}

func (c *Coordinator) AddSink(s ResultSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

func (c *Coordinator) AddObserver(obs SessionLifecycleObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

func (c *Coordinator) sinkList() []ResultSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ResultSink(nil), c.sinks...)
}

// Open loads the session setup and starts its actor. Opening an open
// session returns the existing buffer.
func (c *Coordinator) Open(ctx context.Context, sessionID string) (*stream.EventBuffer, error) {
	rt, err := c.runtimeFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rt.buffer, nil
}

func (c *Coordinator) runtimeFor(ctx context.Context, sessionID string) (*sessionRuntime, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	c.mu.Lock()
	if rt := c.sessions[sessionID]; rt != nil {
		c.mu.Unlock()
		return rt, nil
	}
	c.mu.Unlock()

	if c.source == nil {
		return nil, ErrSessionNotFound
	}
	setup, err := c.source.LoadSessionSetup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	setup.SessionID = sessionID
	setup.Rules = mergeRules(setup.Rules, c.opts.DefaultRules)
	rt, err := newSessionRuntime(c, setup)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	if existing := c.sessions[sessionID]; existing != nil {
		c.mu.Unlock()
		rt.engine.Close()
		return existing, nil
	}
	c.sessions[sessionID] = rt
	observers := append([]SessionLifecycleObserver(nil), c.observers...)
	c.mu.Unlock()

	rt.start()
	metricSessionsOpen.Add(1)
	log.Info().
		Str("session_id", sessionID).
		Int("items", len(setup.Items)).
		Int("teams", len(setup.Teams)).
		Dur("item_duration", setup.Rules.ItemDuration).
		Msg("auction session opened")
	meta := SessionMeta{SessionID: sessionID, Name: setup.Name}
	for _, obs := range observers {
		obs.OnSessionOpened(meta, rt.buffer)
	}
	return rt, nil
}

// Submit validates the sender's role and hands the intent to the session
// actor. Rejections come back both as a Result and an error.
func (c *Coordinator) Submit(ctx context.Context, sessionID string, who policy.Identity, in Intent) (Result, error) {
	metricIntentTotal.Add(1)
	res := Result{Intent: in.Kind, RequestID: in.RequestID}
	if len(in.RequestID) > 64 {
		metricIntentRejected.Add(1)
		res.Reason = "invalid_request_id"
		return res, ErrInvalidRequestID
	}
	if !in.Kind.Valid() {
		metricIntentRejected.Add(1)
		res.Reason = "invalid_intent"
		return res, ErrInvalidIntent
	}
	if err := authorize(who, in.Kind); err != nil {
		metricIntentRejected.Add(1)
		res.Reason = auction.Reason(err)
		return res, err
	}
	rt, err := c.runtimeFor(ctx, sessionID)
	if err != nil {
		return res, err
	}
	return rt.submit(ctx, who, in)
}

func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) (auction.Snapshot, error) {
	snap, _, err := c.SnapshotAt(ctx, sessionID)
	return snap, err
}

// SnapshotAt also returns the id of the newest event the snapshot already
// reflects. Streamed events up to that id carry nothing new.
func (c *Coordinator) SnapshotAt(ctx context.Context, sessionID string) (auction.Snapshot, string, error) {
	rt, err := c.runtimeFor(ctx, sessionID)
	if err != nil {
		return auction.Snapshot{}, "", err
	}
	return rt.snapshot(ctx)
}

// Buffer returns the event buffer of an open session, or nil.
func (c *Coordinator) Buffer(sessionID string) *stream.EventBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt := c.sessions[sessionID]
	if rt == nil {
		return nil
	}
	return rt.buffer
}

// OpenSessions lists the ids of open sessions.
func (c *Coordinator) OpenSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// Close stops a session actor and closes its buffer.
func (c *Coordinator) Close(sessionID, reason string) {
	c.mu.Lock()
	rt := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	observers := append([]SessionLifecycleObserver(nil), c.observers...)
	c.mu.Unlock()
	if rt == nil {
		return
	}
	rt.stop(reason)
	<-rt.done
	metricSessionsOpen.Add(-1)
	for _, obs := range observers {
		obs.OnSessionClosed(sessionID)
	}
	log.Info().Str("session_id", sessionID).Str("reason", reason).Msg("auction session closed")
}

// Reload closes a session and waits until its pending sink deliveries are
// flushed, so the next Open sees everything the actor accepted.
func (c *Coordinator) Reload(ctx context.Context, sessionID, reason string) {
	c.mu.Lock()
	rt := c.sessions[sessionID]
	c.mu.Unlock()
	if rt == nil {
		return
	}
	c.Close(sessionID, reason)
	select {
	case <-rt.sinksDone:
	case <-ctx.Done():
	}
}

// Shutdown closes every session and waits for pending sink deliveries until
// ctx is done.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	runtimes := make([]*sessionRuntime, 0, len(c.sessions))
	for _, rt := range c.sessions {
		runtimes = append(runtimes, rt)
	}
	c.mu.Unlock()
	for _, rt := range runtimes {
		c.Close(rt.id, "server_shutdown")
	}
	for _, rt := range runtimes {
		select {
		case <-rt.sinksDone:
		case <-ctx.Done():
			return
		}
	}
}
