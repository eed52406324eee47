package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/stream"
	"cricket-auction/internal/ledger"

	"github.com/jonboulle/clockwork"
)

var (
	admin = policy.Identity{Role: policy.RoleAdmin}
	teamA = policy.Identity{Role: policy.RoleTeam, TeamID: "A"}
	teamB = policy.Identity{Role: policy.RoleTeam, TeamID: "B"}
)

type fakeSource map[string]auction.Setup

func (f fakeSource) LoadSessionSetup(_ context.Context, sessionID string) (auction.Setup, error) {
	s, ok := f[sessionID]
	if !ok {
		return auction.Setup{}, ErrSessionNotFound
	}
	return s, nil
}

type recordingSink struct {
	mu            sync.Mutex
	outcomes      []auction.ItemResolved
	statuses      []auction.SessionStatus
	registrations []ledger.Team
	failures      int
	notify        chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan string, 64)}
}

func (s *recordingSink) RecordOutcome(_ context.Context, res auction.ItemResolved) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("sink down")
	}
	s.outcomes = append(s.outcomes, res)
	s.mu.Unlock()
	s.notify <- "outcome"
	return nil
}

func (s *recordingSink) RecordSessionStatus(_ context.Context, _ string, status auction.SessionStatus) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
	s.notify <- "status:" + string(status)
	return nil
}

func (s *recordingSink) RecordRegistration(_ context.Context, _ string, team ledger.Team) error {
	s.mu.Lock()
	s.registrations = append(s.registrations, team)
	s.mu.Unlock()
	s.notify <- "registration"
	return nil
}

func (s *recordingSink) wait(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.notify:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("sink never saw %q", want)
		}
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (o *recordingObserver) OnSessionOpened(meta SessionMeta, _ *stream.EventBuffer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, meta.SessionID)
}

func (o *recordingObserver) OnSessionClosed(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, sessionID)
}

func testSetup() auction.Setup {
	return auction.Setup{
		Name:  "Mega Auction",
		Rules: auction.Rules{ItemDuration: 30 * time.Second},
		Items: []auction.Item{
			{ID: "p1", Name: "Opener", BasePrice: 100},
			{ID: "p2", Name: "Spinner", BasePrice: 50},
		},
		Teams: []ledger.Team{
			{ID: "A", Name: "Alpha", TotalPurse: 1000},
			{ID: "B", Name: "Bravo", TotalPurse: 1000},
		},
	}
}

func newTestCoordinator(t *testing.T, opts Options) (*Coordinator, *clockwork.FakeClock, *recordingSink) {
	t.Helper()
	return newTestCoordinatorWith(t, opts, testSetup())
}

func newTestCoordinatorWith(t *testing.T, opts Options, setup auction.Setup) (*Coordinator, *clockwork.FakeClock, *recordingSink) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	opts.Clock = fc
	if opts.SinkRetryBase == 0 {
		opts.SinkRetryBase = time.Millisecond
	}
	coord := NewCoordinator(fakeSource{"s1": setup}, opts)
	sink := newRecordingSink()
	coord.AddSink(sink)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		coord.Shutdown(ctx)
	})
	return coord, fc, sink
}

// waitEvent reads ch until an event with the given name arrives.
func waitEvent(t *testing.T, ch chan stream.StreamEvent, name string) stream.StreamEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed before %q", name)
			}
			if ev.Event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
		}
	}
}

func mustSubmit(t *testing.T, c *Coordinator, who policy.Identity, in Intent) Result {
	t.Helper()
	res, err := c.Submit(context.Background(), "s1", who, in)
	if err != nil {
		t.Fatalf("submit %s: %v (reason %s)", in.Kind, err, res.Reason)
	}
	if !res.Accepted {
		t.Fatalf("submit %s not accepted: %+v", in.Kind, res)
	}
	return res
}

func eventNames(events []stream.StreamEvent) map[string]int {
	out := map[string]int{}
	for _, ev := range events {
		out[ev.Event]++
	}
	return out
}
