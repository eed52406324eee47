package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/ledger"
)

func TestSessionFlowThroughActor(t *testing.T) {
	coord, fc, sink := newTestCoordinator(t, Options{})
	ctx := context.Background()
	buf, err := coord.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)

	start := mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	if start.Advanced == nil || start.Advanced.Item.ID != "p1" {
		t.Fatalf("unexpected start result: %+v", start)
	}
	sink.wait(t, "status:active")
	waitEvent(t, ch, "item_advanced")

	mustSubmit(t, coord, teamA, Intent{Kind: IntentSubmitBid, Amount: 150, RequestID: "a-1"})
	res, err := coord.Submit(ctx, "s1", teamB, Intent{Kind: IntentSubmitBid, Amount: 150})
	if !errors.Is(err, auction.ErrStaleBid) || res.Accepted || res.Reason != "stale_bid" {
		t.Fatalf("expected stale bid rejection, got %+v err=%v", res, err)
	}
	bid := mustSubmit(t, coord, teamB, Intent{Kind: IntentSubmitBid, Amount: 200})
	if bid.Bid == nil || bid.Bid.TeamID != "B" || bid.TimeRemainingMS != 30_000 {
		t.Fatalf("unexpected bid result: %+v", bid)
	}
	ev := waitEvent(t, ch, "bid_accepted")
	if data := ev.Data.(map[string]any); data["leader"] != "A" {
		t.Fatalf("first broadcast bid should be A's, got %+v", data)
	}

	fc.Advance(30 * time.Second)
	resolved := waitEvent(t, ch, "item_resolved")
	out := resolved.Data.(auction.ItemResolved)
	if out.Outcome != auction.OutcomeSold || out.WinnerID != "B" || out.Price != 200 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	sink.wait(t, "outcome")

	snap, err := coord.Snapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != auction.PhaseItemResolving {
		t.Fatalf("expected resolving, got %s", snap.Phase)
	}
	for _, team := range snap.Teams {
		if team.ID == "B" && team.Remaining != 800 {
			t.Fatalf("expected B to have 800 left, got %+v", team)
		}
	}

	if _, err := coord.Submit(ctx, "s1", teamA, Intent{Kind: IntentSubmitBid, Amount: 500}); !errors.Is(err, auction.ErrInvalidTransition) {
		t.Fatalf("bid after expiry must be refused, got %v", err)
	}

	adv := mustSubmit(t, coord, admin, Intent{Kind: IntentAdvanceItem})
	if adv.Advanced == nil || adv.Advanced.Item.ID != "p2" {
		t.Fatalf("expected p2, got %+v", adv)
	}
	end := mustSubmit(t, coord, admin, Intent{Kind: IntentForceEnd})
	if end.Resolved == nil || end.Resolved.Outcome != auction.OutcomeUnsold || end.Completed == nil {
		t.Fatalf("unexpected force end result: %+v", end)
	}
	waitEvent(t, ch, "session_complete")
	sink.wait(t, "status:completed")
}

func TestRejectionsStayWithSender(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	buf, _ := coord.Open(ctx, "s1")
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	mustSubmit(t, coord, teamA, Intent{Kind: IntentSubmitBid, Amount: 150})
	before := buf.LastEventID()

	if _, err := coord.Submit(ctx, "s1", teamA, Intent{Kind: IntentSubmitBid, Amount: 200}); !errors.Is(err, auction.ErrSelfOutbid) {
		t.Fatalf("expected self outbid, got %v", err)
	}
	if _, err := coord.Submit(ctx, "s1", teamB, Intent{Kind: IntentSubmitBid, Amount: 5000}); !errors.Is(err, auction.ErrInsufficientBudget) {
		t.Fatalf("expected insufficient budget, got %v", err)
	}
	if after := buf.LastEventID(); after != before {
		t.Fatalf("rejections must not reach the shared stream: %s -> %s", before, after)
	}
}

func TestRoleChecks(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	cases := []struct {
		who  policy.Identity
		kind IntentKind
	}{
		{teamA, IntentStartSession},
		{teamA, IntentForceEnd},
		{admin, IntentSubmitBid},
		{policy.Spectator(), IntentSubmitBid},
		{policy.Spectator(), IntentPause},
	}
	for _, tc := range cases {
		res, err := coord.Submit(ctx, "s1", tc.who, Intent{Kind: tc.kind, Amount: 500})
		if !errors.Is(err, auction.ErrUnauthorized) || res.Reason != "unauthorized" {
			t.Fatalf("%s as %s: expected unauthorized, got %+v err=%v", tc.kind, tc.who.Role, res, err)
		}
	}
	if _, err := coord.Submit(ctx, "s1", admin, Intent{Kind: "dance"}); !errors.Is(err, ErrInvalidIntent) {
		t.Fatalf("expected invalid intent, got %v", err)
	}
	if _, err := coord.Submit(ctx, "missing", admin, Intent{Kind: IntentStartSession}); !IsSessionNotFound(err) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestDuplicateRequestIDAppliesOnce(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})

	first := mustSubmit(t, coord, teamA, Intent{Kind: IntentSubmitBid, Amount: 150, RequestID: "r1"})
	again, err := coord.Submit(ctx, "s1", teamA, Intent{Kind: IntentSubmitBid, Amount: 150, RequestID: "r1"})
	if err != nil || !again.Duplicate || !again.Accepted || again.Bid.Seq != first.Bid.Seq {
		t.Fatalf("expected cached first result, got %+v err=%v", again, err)
	}
	// Same request id from another team is a different request.
	if _, err := coord.Submit(ctx, "s1", teamB, Intent{Kind: IntentSubmitBid, Amount: 150, RequestID: "r1"}); !errors.Is(err, auction.ErrStaleBid) {
		t.Fatalf("expected stale bid for B, got %v", err)
	}
	snap, _ := coord.Snapshot(ctx, "s1")
	if snap.ActiveItem.BidCount != 1 {
		t.Fatalf("expected one bid, got %d", snap.ActiveItem.BidCount)
	}

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := coord.Submit(ctx, "s1", teamB, Intent{Kind: IntentSubmitBid, Amount: 300, RequestID: string(long)}); !errors.Is(err, ErrInvalidRequestID) {
		t.Fatalf("expected invalid request id, got %v", err)
	}
}

func TestAutoAdvanceAndClockTicks(t *testing.T) {
	coord, fc, _ := newTestCoordinator(t, Options{AutoAdvance: 2 * time.Second, ClockTick: time.Second})
	ctx := context.Background()
	buf, _ := coord.Open(ctx, "s1")
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	waitEvent(t, ch, "item_advanced")

	fc.Advance(time.Second)
	tick := waitEvent(t, ch, "clock_tick")
	if data := tick.Data.(map[string]any); data["item_id"] != "p1" {
		t.Fatalf("unexpected tick %+v", data)
	}

	fc.Advance(29 * time.Second)
	waitEvent(t, ch, "item_resolved")
	fc.Advance(2 * time.Second)
	ev := waitEvent(t, ch, "item_advanced")
	if data := ev.Data.(map[string]any); data["item_id"] != "p2" {
		t.Fatalf("expected auto advance to p2, got %+v", data)
	}
}

func TestPauseResumeThroughActor(t *testing.T) {
	coord, fc, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	buf, _ := coord.Open(ctx, "s1")
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	fc.Advance(10 * time.Second)

	paused := mustSubmit(t, coord, admin, Intent{Kind: IntentPause})
	if paused.TimeRemainingMS != 20_000 {
		t.Fatalf("expected 20s left, got %d", paused.TimeRemainingMS)
	}
	waitEvent(t, ch, "session_paused")
	if _, err := coord.Submit(ctx, "s1", teamA, Intent{Kind: IntentSubmitBid, Amount: 150}); !errors.Is(err, auction.ErrInvalidTransition) {
		t.Fatalf("paused session must refuse bids, got %v", err)
	}
	fc.Advance(time.Hour)
	resumed := mustSubmit(t, coord, admin, Intent{Kind: IntentResume})
	if resumed.TimeRemainingMS != 20_000 {
		t.Fatalf("expected 20s after resume, got %d", resumed.TimeRemainingMS)
	}
	waitEvent(t, ch, "session_resumed")
}

func TestRegisterTeamReachesSink(t *testing.T) {
	setup := testSetup()
	setup.Rules.MinRegisterBudget = 500
	coord, _, sink := newTestCoordinatorWith(t, Options{}, setup)
	ctx := context.Background()
	if _, err := coord.Submit(ctx, "s1", admin, Intent{Kind: IntentRegisterTeam}); !errors.Is(err, ErrInvalidIntent) {
		t.Fatalf("missing team must be invalid, got %v", err)
	}
	if _, err := coord.Submit(ctx, "s1", admin, Intent{Kind: IntentRegisterTeam, Team: &ledger.Team{ID: "C", TotalPurse: 100}}); !errors.Is(err, auction.ErrBelowMinBudget) {
		t.Fatalf("expected below min budget, got %v", err)
	}
	res := mustSubmit(t, coord, admin, Intent{Kind: IntentRegisterTeam, Team: &ledger.Team{ID: "C", Name: "Chennai", TotalPurse: 900}})
	if res.Team == nil || res.Team.Remaining != 900 {
		t.Fatalf("unexpected team %+v", res.Team)
	}
	sink.wait(t, "registration")
}

func TestSinkRetriesFailures(t *testing.T) {
	coord, fc, sink := newTestCoordinator(t, Options{})
	sink.mu.Lock()
	sink.failures = 2
	sink.mu.Unlock()
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	mustSubmit(t, coord, teamA, Intent{Kind: IntentSubmitBid, Amount: 120})
	fc.Advance(30 * time.Second)
	sink.wait(t, "outcome")
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.outcomes) != 1 || sink.outcomes[0].WinnerID != "A" {
		t.Fatalf("expected one recorded outcome, got %+v", sink.outcomes)
	}
}

func TestJanitorClosesCompletedSessions(t *testing.T) {
	coord, fc, _ := newTestCoordinator(t, Options{Retention: 10 * time.Minute})
	obs := &recordingObserver{}
	coord.AddObserver(obs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf, _ := coord.Open(ctx, "s1")
	coord.StartJanitor(ctx, time.Minute)
	mustSubmit(t, coord, admin, Intent{Kind: IntentForceEnd})

	fc.Advance(11 * time.Minute)
	deadline := time.Now().Add(2 * time.Second)
	for coord.Buffer("s1") != nil {
		if time.Now().After(deadline) {
			t.Fatal("completed session was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !buf.Closed() {
		t.Fatal("buffer should be closed with the session")
	}
	last := buf.ReplayAfter("")
	if last[len(last)-1].Event != "session_closed" {
		t.Fatalf("expected session_closed last, got %+v", last[len(last)-1])
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.opened) != 1 || len(obs.closed) != 1 {
		t.Fatalf("observer saw opened=%v closed=%v", obs.opened, obs.closed)
	}
}

func TestClosedSessionRefusesIntents(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	buf, _ := coord.Open(ctx, "s1")
	rt := coord.sessions["s1"]
	coord.Close("s1", "test")
	if !buf.Closed() {
		t.Fatal("buffer should close")
	}
	if _, err := rt.submit(ctx, admin, Intent{Kind: IntentStartSession}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
	names := eventNames(buf.ReplayAfter(""))
	if names["session_closed"] != 1 {
		t.Fatalf("expected a session_closed event, got %v", names)
	}
}

func TestReloadFlushesSinksBeforeReturning(t *testing.T) {
	coord, _, sink := newTestCoordinator(t, Options{})
	mustSubmit(t, coord, admin, Intent{Kind: IntentRegisterTeam, Team: &ledger.Team{ID: "C", Name: "Chennai", TotalPurse: 900}})
	coord.Reload(context.Background(), "s1", "setup_changed")

	sink.mu.Lock()
	n := len(sink.registrations)
	sink.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected registration flushed before reload returns, got %d", n)
	}
	if coord.Buffer("s1") != nil {
		t.Fatal("reload must close the session")
	}
	// Reloading a session that is not open is a no-op.
	coord.Reload(context.Background(), "s1", "setup_changed")
}

func TestExplicitZeroIncrementIsKept(t *testing.T) {
	setup := testSetup()
	setup.Rules.BidIncrement = 0
	coord, _, _ := newTestCoordinatorWith(t, Options{DefaultRules: auction.Rules{ItemDuration: time.Minute, BidIncrement: 50}}, setup)
	mustSubmit(t, coord, admin, Intent{Kind: IntentStartSession})
	res := mustSubmit(t, coord, teamA, Intent{Kind: IntentSubmitBid, Amount: 101})
	if res.Bid == nil || res.Bid.Amount != 101 {
		t.Fatalf("expected 101 accepted, got %+v", res)
	}
	snap, err := coord.Snapshot(context.Background(), "s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.BidIncrement != 0 || snap.ItemDurationMS != 30000 {
		t.Fatalf("stored rules must win over defaults, got increment=%d duration=%d", snap.BidIncrement, snap.ItemDurationMS)
	}
}

func TestReopenedActiveSessionResumesBetweenItems(t *testing.T) {
	setup := testSetup()
	setup.Status = auction.SessionActive
	setup.Items[0].Status = auction.ItemSold
	setup.Items[0].WinnerID = "A"
	setup.Items[0].FinalPrice = 300
	coord, _, sink := newTestCoordinatorWith(t, Options{}, setup)
	ctx := context.Background()

	snap, err := coord.Snapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != auction.SessionActive || snap.Phase != auction.PhaseItemResolving {
		t.Fatalf("expected active session between items, got status=%s phase=%s", snap.Status, snap.Phase)
	}
	res, err := coord.Submit(ctx, "s1", admin, Intent{Kind: IntentRegisterTeam, Team: &ledger.Team{ID: "C", Name: "Chennai", TotalPurse: 900}})
	if !errors.Is(err, auction.ErrRegistrationClosed) || res.Reason != "registration_closed" {
		t.Fatalf("expected registration closed, got %v (%s)", err, res.Reason)
	}
	if _, err := coord.Submit(ctx, "s1", admin, Intent{Kind: IntentStartSession}); !errors.Is(err, auction.ErrInvalidTransition) {
		t.Fatalf("start on an active session must fail, got %v", err)
	}

	adv := mustSubmit(t, coord, admin, Intent{Kind: IntentAdvanceItem})
	if adv.Advanced == nil || adv.Advanced.Item.ID != "p2" {
		t.Fatalf("expected p2 to open, got %+v", adv.Advanced)
	}
	mustSubmit(t, coord, teamB, Intent{Kind: IntentSubmitBid, Amount: 60})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.registrations) != 0 {
		t.Fatalf("refused registration reached the sink: %+v", sink.registrations)
	}
	for _, st := range sink.statuses {
		if st == auction.SessionActive {
			t.Fatal("resume must not record the session as started again")
		}
	}
}

func TestReopenedActiveSessionAutoAdvances(t *testing.T) {
	setup := testSetup()
	setup.Status = auction.SessionActive
	coord, fc, _ := newTestCoordinatorWith(t, Options{AutoAdvance: 2 * time.Second}, setup)
	buf, err := coord.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)
	fc.Advance(2 * time.Second)
	ev := waitEvent(t, ch, "item_advanced")
	if data := ev.Data.(map[string]any); data["item_id"] != "p1" {
		t.Fatalf("expected the pending p1 to open, got %+v", data)
	}
}
