package auction

import (
	"errors"
	"math"
	"testing"
	"time"

	"cricket-auction/internal/ledger"

	"github.com/jonboulle/clockwork"
)

type engineHarness struct {
	engine *Engine
	clock  *clockwork.FakeClock
	fired  chan uint64
}

func newHarness(t *testing.T, rules Rules, items []Item, teams ...ledger.Team) *engineHarness {
	t.Helper()
	fc := clockwork.NewFakeClock()
	fired := make(chan uint64, 8)
	if len(teams) == 0 {
		teams = []ledger.Team{
			{ID: "A", Name: "Alpha", TotalPurse: 1000},
			{ID: "B", Name: "Bravo", TotalPurse: 1000},
		}
	}
	e, err := NewEngine(Setup{SessionID: "s1", Rules: rules, Items: items, Teams: teams}, fc, func(gen uint64) { fired <- gen })
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return &engineHarness{engine: e, clock: fc, fired: fired}
}

func defaultRules() Rules {
	return Rules{ItemDuration: 30 * time.Second}
}

func (h *engineHarness) expire(t *testing.T) ItemResolved {
	t.Helper()
	h.clock.Advance(h.engine.TimeRemaining())
	gen := waitExpiry(t, h.fired)
	res, err := h.engine.OnClockExpire(gen)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	return res
}

func mustBid(t *testing.T, e *Engine, team string, amount int64) BidAccepted {
	t.Helper()
	acc, err := e.SubmitBid(team, amount)
	if err != nil {
		t.Fatalf("bid %s %d: %v", team, amount, err)
	}
	return acc
}

func TestScenarioSoldToHighestBidder(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", Name: "Player One", BasePrice: 100}})
	e := h.engine
	if _, err := e.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}

	acc := mustBid(t, e, "A", 150)
	if acc.Seq != 1 || acc.TeamID != "A" || acc.Amount != 150 {
		t.Fatalf("unexpected accepted bid: %+v", acc)
	}
	if _, err := e.SubmitBid("B", 150); !errors.Is(err, ErrStaleBid) {
		t.Fatalf("expected stale bid, got %v", err)
	}
	h.clock.Advance(10 * time.Second)
	mustBid(t, e, "B", 200)
	if got := e.TimeRemaining(); got != 30*time.Second {
		t.Fatalf("expected clock reset to 30s, got %s", got)
	}
	snap := e.Snapshot()
	if snap.ActiveItem == nil || snap.ActiveItem.CurrentPrice != 200 || snap.ActiveItem.LeaderID != "B" {
		t.Fatalf("unexpected active item: %+v", snap.ActiveItem)
	}

	res := h.expire(t)
	if res.Outcome != OutcomeSold || res.WinnerID != "B" || res.Price != 200 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	b, _ := e.Team("B")
	if b.Remaining != 800 || b.Acquired != 1 {
		t.Fatalf("expected B remaining 800 with 1 player, got %+v", b)
	}
	a, _ := e.Team("A")
	if a.Remaining != 1000 || a.Acquired != 0 {
		t.Fatalf("A must be untouched, got %+v", a)
	}
	if e.Phase() != PhaseItemResolving {
		t.Fatalf("expected resolving, got %s", e.Phase())
	}
	if _, err := e.SubmitBid("A", 500); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("bids after resolution must be refused, got %v", err)
	}
}

func TestScenarioNoBidsUnsold(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	if _, err := h.engine.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	res := h.expire(t)
	if res.Outcome != OutcomeUnsold || res.WinnerID != "" || res.Price != 0 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	for _, team := range h.engine.Snapshot().Teams {
		if team.Remaining != team.TotalPurse || team.Acquired != 0 {
			t.Fatalf("budget mutated for %+v", team)
		}
	}
	item, _ := h.engine.seq.Item("p1")
	if item.Status != ItemUnsold || item.WinnerID != "" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestScenarioSelfOutbidRejected(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	mustBid(t, e, "A", 150)
	if _, err := e.SubmitBid("A", 200); !errors.Is(err, ErrSelfOutbid) {
		t.Fatalf("expected self outbid, got %v", err)
	}
	snap := e.Snapshot()
	if snap.ActiveItem.CurrentPrice != 150 || snap.ActiveItem.LeaderID != "A" || snap.ActiveItem.BidCount != 1 {
		t.Fatalf("state changed after rejection: %+v", snap.ActiveItem)
	}
}

func TestScenarioForceEndMarksActiveUnsold(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}, {ID: "p2", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	mustBid(t, e, "A", 150)
	mustBid(t, e, "B", 300)

	out, err := e.ForceEnd()
	if err != nil {
		t.Fatalf("force end: %v", err)
	}
	if out.Resolved == nil || out.Resolved.Outcome != OutcomeUnsold || out.Resolved.Reason != ReasonForced {
		t.Fatalf("unexpected forced resolution: %+v", out.Resolved)
	}
	if out.Resolved.HighBid != 300 || out.Resolved.WinnerID != "" {
		t.Fatalf("forced item must not be sold: %+v", out.Resolved)
	}
	if out.Complete.Reason != ReasonForced || out.Complete.Unsold != 1 || out.Complete.Pending != 1 {
		t.Fatalf("unexpected completion: %+v", out.Complete)
	}
	if e.Phase() != PhaseSessionComplete || e.Status() != SessionCompleted {
		t.Fatalf("expected complete, got %s/%s", e.Phase(), e.Status())
	}
	b, _ := e.Team("B")
	if b.Remaining != 1000 {
		t.Fatalf("forced end must not debit, got %+v", b)
	}
	h.clock.Advance(time.Minute)
	expectNoExpiry(t, h.fired)
	if _, err := e.ForceEnd(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second force end must fail, got %v", err)
	}
}

func TestAntiSnipingResetsAtOneSecond(t *testing.T) {
	h := newHarness(t, Rules{ItemDuration: 20 * time.Second}, []Item{{ID: "p1", BasePrice: 10}})
	e := h.engine
	e.StartSession()
	h.clock.Advance(19 * time.Second)
	if got := e.TimeRemaining(); got != time.Second {
		t.Fatalf("expected 1s remaining, got %s", got)
	}
	acc := mustBid(t, e, "A", 20)
	if acc.TimeRemaining != 20*time.Second || e.TimeRemaining() != 20*time.Second {
		t.Fatalf("expected full reset, got %s / %s", acc.TimeRemaining, e.TimeRemaining())
	}
	h.clock.Advance(time.Second)
	expectNoExpiry(t, h.fired)
}

func TestStaleExpiryIgnoredAfterBid(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	h.clock.Advance(30 * time.Second)
	stale := waitExpiry(t, h.fired)

	// A bid serialized before the queued expiry is honored.
	mustBid(t, e, "A", 150)
	if _, err := e.OnClockExpire(stale); !errors.Is(err, ErrStaleExpiry) {
		t.Fatalf("expected stale expiry, got %v", err)
	}
	if e.Phase() != PhaseItemOpen {
		t.Fatalf("item must stay open, got %s", e.Phase())
	}
	res := h.expire(t)
	if res.WinnerID != "A" || res.Price != 150 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestBidAfterExpiryRejected(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	h.expire(t)
	if _, err := e.SubmitBid("A", 150); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestStartSessionTransitions(t *testing.T) {
	h := newHarness(t, defaultRules(), nil)
	_, err := h.engine.StartSession()
	if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected empty queue transition error, got %v", err)
	}
	if Reason(err) != "invalid_transition" {
		t.Fatalf("unexpected reason %q", Reason(err))
	}

	h = newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 1}})
	adv, err := h.engine.StartSession()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if adv.Item.ID != "p1" || adv.Item.Status != ItemActive || adv.Position != 1 || adv.ItemsRemaining != 0 {
		t.Fatalf("unexpected advance: %+v", adv)
	}
	if h.engine.Status() != SessionActive {
		t.Fatalf("expected active, got %s", h.engine.Status())
	}
	if _, err := h.engine.StartSession(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start must fail, got %v", err)
	}
}

func TestAdvanceThroughQueue(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}, {ID: "p2", BasePrice: 100}})
	e := h.engine
	if _, err := e.AdvanceToNextItem(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from idle must fail, got %v", err)
	}
	e.StartSession()
	if _, err := e.AdvanceToNextItem(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance while open must fail, got %v", err)
	}
	mustBid(t, e, "A", 120)
	h.expire(t)

	adv, err := e.AdvanceToNextItem()
	if err != nil || adv.Next == nil || adv.Next.Item.ID != "p2" {
		t.Fatalf("expected p2 next, got %+v err=%v", adv, err)
	}
	if e.TimeRemaining() != 30*time.Second {
		t.Fatalf("clock must restart, got %s", e.TimeRemaining())
	}
	h.expire(t)
	adv, err = e.AdvanceToNextItem()
	if err != nil || adv.Complete == nil {
		t.Fatalf("expected completion, got %+v err=%v", adv, err)
	}
	if adv.Complete.Sold != 1 || adv.Complete.Unsold != 1 || adv.Complete.Reason != ReasonQueueExhausted {
		t.Fatalf("unexpected completion: %+v", adv.Complete)
	}
	if e.Status() != SessionCompleted {
		t.Fatalf("expected completed, got %s", e.Status())
	}
}

func TestExactlyOneActiveWhileOpen(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 1}, {ID: "p2", BasePrice: 1}, {ID: "p3", BasePrice: 1}})
	e := h.engine
	countActive := func() int {
		n := 0
		for _, it := range e.Snapshot().Items {
			if it.Status == ItemActive {
				n++
			}
		}
		return n
	}
	if countActive() != 0 {
		t.Fatal("no item may be active before start")
	}
	e.StartSession()
	for e.Phase() != PhaseSessionComplete {
		if e.Status() == SessionActive && e.Phase() == PhaseItemOpen && countActive() != 1 {
			t.Fatalf("expected exactly one active item, got %d", countActive())
		}
		h.expire(t)
		if countActive() > 1 {
			t.Fatal("more than one active item")
		}
		if _, err := e.AdvanceToNextItem(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if countActive() != 0 {
		t.Fatal("no item may stay active after completion")
	}
}

func TestBidAmountsStrictlyIncreasing(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}},
		ledger.Team{ID: "A", TotalPurse: 10_000},
		ledger.Team{ID: "B", TotalPurse: 10_000},
		ledger.Team{ID: "C", TotalPurse: 10_000},
	)
	e := h.engine
	e.StartSession()
	teams := []string{"A", "B", "C"}
	amounts := []int64{100, 150, 140, 150, 151, 400, 399, 400, 401, 1000}
	for i, amount := range amounts {
		_, _ = e.SubmitBid(teams[i%len(teams)], amount)
	}
	bids := e.Bids("p1")
	if len(bids) == 0 {
		t.Fatal("expected accepted bids")
	}
	for i := 1; i < len(bids); i++ {
		if bids[i-1].Amount <= bids[i].Amount || bids[i-1].Seq <= bids[i].Seq {
			t.Fatalf("history not strictly increasing at %d: %+v", i, bids)
		}
	}
}

func TestBudgetNeverBelowLedBid(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}, {ID: "p2", BasePrice: 100}},
		ledger.Team{ID: "A", TotalPurse: 500},
		ledger.Team{ID: "B", TotalPurse: 300},
	)
	e := h.engine
	e.StartSession()
	mustBid(t, e, "A", 200)
	mustBid(t, e, "B", 300)
	if _, err := e.SubmitBid("A", 600); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("expected insufficient budget, got %v", err)
	}
	h.expire(t)
	e.AdvanceToNextItem()
	if _, err := e.SubmitBid("B", 101); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("spent team must be refused, got %v", err)
	}
	check := func() {
		snap := e.Snapshot()
		for _, team := range snap.Teams {
			if team.Remaining < 0 {
				t.Fatalf("negative budget: %+v", team)
			}
			if snap.ActiveItem != nil && snap.ActiveItem.LeaderID == team.ID && team.Remaining < snap.ActiveItem.CurrentPrice {
				t.Fatalf("team leads %d with only %d left", snap.ActiveItem.CurrentPrice, team.Remaining)
			}
		}
	}
	check()
	mustBid(t, e, "A", 500)
	check()
}

func TestReplayCommitIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	mustBid(t, e, "A", 250)
	res := h.expire(t)
	if e.ReplayCommit(res) {
		t.Fatal("replayed commit must be ignored")
	}
	if e.ReplayCommit(res) {
		t.Fatal("replayed commit must be ignored")
	}
	a, _ := e.Team("A")
	if a.Remaining != 750 || a.Acquired != 1 {
		t.Fatalf("expected single debit, got %+v", a)
	}
}

func TestRejectionsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t, Rules{ItemDuration: 30 * time.Second, BidIncrement: 50}, []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	e.StartSession()
	h.clock.Advance(5 * time.Second)
	before := e.Snapshot()
	cases := []struct {
		team   string
		amount int64
		want   error
	}{
		{"Z", 500, ErrUnauthorized},
		{"A", 100, ErrStaleBid},
		{"A", 120, ErrBelowIncrement},
		{"A", 5000, ErrInsufficientBudget},
	}
	for _, tc := range cases {
		if _, err := e.SubmitBid(tc.team, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("bid %s %d: expected %v, got %v", tc.team, tc.amount, tc.want, err)
		}
	}
	after := e.Snapshot()
	if after.ActiveItem.BidCount != before.ActiveItem.BidCount || after.TimeRemainingMS != before.TimeRemainingMS {
		t.Fatalf("rejected bids mutated state: before=%+v after=%+v", before.ActiveItem, after.ActiveItem)
	}
	mustBid(t, e, "A", 150)
}

func TestRosterRules(t *testing.T) {
	rules := Rules{ItemDuration: 30 * time.Second, MaxRoster: 1}
	h := newHarness(t, rules, []Item{{ID: "p1", BasePrice: 10}, {ID: "p2", BasePrice: 10}})
	e := h.engine
	e.StartSession()
	mustBid(t, e, "A", 20)
	h.expire(t)
	e.AdvanceToNextItem()
	if _, err := e.SubmitBid("A", 20); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("expected roster full, got %v", err)
	}

	rules = Rules{ItemDuration: 30 * time.Second, MinRoster: 3, ReservePrice: 100}
	h = newHarness(t, rules, []Item{{ID: "p1", BasePrice: 10}}, ledger.Team{ID: "A", TotalPurse: 1000})
	h.engine.StartSession()
	// Two more mandatory slots after this one need 200 kept back.
	if _, err := h.engine.SubmitBid("A", 801); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("expected reserve rejection, got %v", err)
	}
	mustBid(t, h.engine, "A", 800)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 100}})
	e := h.engine
	if _, err := e.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause from idle must fail, got %v", err)
	}
	e.StartSession()
	h.clock.Advance(10 * time.Second)
	left, err := e.Pause()
	if err != nil || left != 20*time.Second {
		t.Fatalf("pause: left=%s err=%v", left, err)
	}
	if _, err := e.SubmitBid("A", 150); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("bids must be refused while paused, got %v", err)
	}
	h.clock.Advance(time.Hour)
	expectNoExpiry(t, h.fired)
	if !e.Snapshot().Paused {
		t.Fatal("snapshot should report paused")
	}
	left, err = e.Resume()
	if err != nil || left != 20*time.Second {
		t.Fatalf("resume: left=%s err=%v", left, err)
	}
	if _, err := e.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double resume must fail, got %v", err)
	}
	res := h.expire(t)
	if res.Outcome != OutcomeUnsold {
		t.Fatalf("unexpected outcome %+v", res)
	}
}

func TestRegisterTeam(t *testing.T) {
	h := newHarness(t, Rules{ItemDuration: time.Second, MinRegisterBudget: 500, MaxRoster: 4}, []Item{{ID: "p1", BasePrice: 1}})
	e := h.engine
	if _, err := e.RegisterTeam(ledger.Team{ID: "C", TotalPurse: 100}); !errors.Is(err, ErrBelowMinBudget) {
		t.Fatalf("expected below min budget, got %v", err)
	}
	team, err := e.RegisterTeam(ledger.Team{ID: "C", TotalPurse: 900})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if team.Remaining != 900 || team.MaxRoster != 4 {
		t.Fatalf("unexpected defaults: %+v", team)
	}
	if _, err := e.RegisterTeam(ledger.Team{ID: "C", TotalPurse: 900}); !errors.Is(err, ledger.ErrTeamExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	e.StartSession()
	if _, err := e.RegisterTeam(ledger.Team{ID: "D", TotalPurse: 900}); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected registration closed, got %v", err)
	}
}

func TestSnapshotRecentBids(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{{ID: "p1", BasePrice: 0}},
		ledger.Team{ID: "A", TotalPurse: 100_000},
		ledger.Team{ID: "B", TotalPurse: 100_000},
	)
	e := h.engine
	e.StartSession()
	for i := int64(1); i <= 12; i++ {
		team := "A"
		if i%2 == 0 {
			team = "B"
		}
		mustBid(t, e, team, i*10)
	}
	snap := e.Snapshot()
	if len(snap.RecentBids) != 10 {
		t.Fatalf("expected 10 recent bids, got %d", len(snap.RecentBids))
	}
	if snap.RecentBids[0].Amount != 120 || snap.RecentBids[9].Amount != 30 {
		t.Fatalf("recent bids must be newest first: %+v", snap.RecentBids)
	}
	if snap.ActiveItem.Position != 1 || snap.ItemsRemaining != 0 {
		t.Fatalf("unexpected position data: %+v", snap)
	}
}

func TestResumedSetupKeepsSoldItems(t *testing.T) {
	h := newHarness(t, defaultRules(), []Item{
		{ID: "p1", BasePrice: 100, Status: ItemSold, WinnerID: "A", FinalPrice: 300},
		{ID: "p2", BasePrice: 100},
	}, ledger.Team{ID: "A", TotalPurse: 1000, Remaining: 700, Acquired: 1})
	e := h.engine
	if e.ReplayCommit(ItemResolved{ItemID: "p1", Outcome: OutcomeSold, WinnerID: "A", Price: 300}) {
		t.Fatal("sale loaded from setup must not be committed again")
	}
	adv, err := e.StartSession()
	if err != nil || adv.Item.ID != "p2" {
		t.Fatalf("expected p2, got %+v err=%v", adv, err)
	}
}

func TestResumedActiveSessionWaitsBetweenItems(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e, err := NewEngine(Setup{
		SessionID: "s1",
		Status:    SessionActive,
		Rules:     defaultRules(),
		Items: []Item{
			{ID: "p1", BasePrice: 100, Status: ItemSold, WinnerID: "A", FinalPrice: 300},
			{ID: "p2", BasePrice: 100},
			{ID: "p3", BasePrice: 50},
		},
		Teams: []ledger.Team{{ID: "A", TotalPurse: 1000, Remaining: 700, Acquired: 1}, {ID: "B", TotalPurse: 1000}},
	}, fc, func(uint64) {})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Close()

	snap := e.Snapshot()
	if snap.Status != SessionActive || snap.Phase != PhaseItemResolving || snap.ActiveItem != nil {
		t.Fatalf("expected an active session between items, got %+v", snap)
	}
	if _, err := e.RegisterTeam(ledger.Team{ID: "C", TotalPurse: 1000}); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected registration closed, got %v", err)
	}
	if _, err := e.StartSession(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected start to be refused, got %v", err)
	}
	if _, err := e.SubmitBid("B", 200); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("bid between items must be refused, got %v", err)
	}
	adv, err := e.AdvanceToNextItem()
	if err != nil || adv.Next == nil || adv.Next.Item.ID != "p2" {
		t.Fatalf("expected advance to open p2, got %+v err=%v", adv, err)
	}
	mustBid(t, e, "B", 150)
}

func TestResumedActiveSessionWithNothingLeftCompletes(t *testing.T) {
	e, err := NewEngine(Setup{
		SessionID: "s2",
		Status:    SessionActive,
		Rules:     defaultRules(),
		Items:     []Item{{ID: "p1", BasePrice: 100, Status: ItemUnsold}},
	}, clockwork.NewFakeClock(), func(uint64) {})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Close()
	adv, err := e.AdvanceToNextItem()
	if err != nil || adv.Complete == nil || adv.Complete.Reason != ReasonQueueExhausted {
		t.Fatalf("expected completion, got %+v err=%v", adv, err)
	}
}

func TestNewEngineRejectsBadSetup(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cases := map[string]Setup{
		"completed": {SessionID: "s1", Status: SessionCompleted},
		"unknown":   {SessionID: "s1", Status: "archived"},
		"increment": {SessionID: "s1", Rules: Rules{BidIncrement: MaxBidIncrement + 1}},
		"negative":  {SessionID: "s1", Rules: Rules{ReservePrice: -1}},
	}
	for name, setup := range cases {
		if _, err := NewEngine(setup, fc, func(uint64) {}); !errors.Is(err, ErrInvalidSetup) {
			t.Fatalf("%s: expected invalid setup, got %v", name, err)
		}
	}
}

func TestIncrementCheckNearInt64Limit(t *testing.T) {
	h := newHarness(t, Rules{ItemDuration: 30 * time.Second, BidIncrement: MaxBidIncrement},
		[]Item{{ID: "p1", BasePrice: math.MaxInt64 - 10}},
		ledger.Team{ID: "A", TotalPurse: math.MaxInt64})
	e := h.engine
	if _, err := e.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.SubmitBid("A", math.MaxInt64); !errors.Is(err, ErrBelowIncrement) {
		t.Fatalf("expected below increment without overflow, got %v", err)
	}
}

func TestReasonCodes(t *testing.T) {
	cases := map[error]string{
		ErrStaleBid:           "stale_bid",
		ErrSelfOutbid:         "self_outbid",
		ErrInsufficientBudget: "insufficient_budget",
		ErrBelowIncrement:     "below_min_increment",
		ErrRosterFull:         "roster_full",
		errors.New("boom"):    "internal_error",
	}
	for err, want := range cases {
		if got := Reason(err); got != want {
			t.Fatalf("Reason(%v) = %q, want %q", err, got, want)
		}
	}
	if Rejection(nil) || !Rejection(ErrStaleBid) || Rejection(errors.New("boom")) {
		t.Fatal("unexpected rejection classification")
	}
}

func TestMinNextBidAndReserve(t *testing.T) {
	if MinNextBid(100, 0) != 101 || MinNextBid(100, 25) != 125 {
		t.Fatal("unexpected min next bid")
	}
	if MinNextBid(math.MaxInt64-1, 5) != math.MaxInt64 {
		t.Fatal("min next bid must saturate")
	}
	if RosterReserve(5, 10, 1) != 30 || RosterReserve(0, 10, 0) != 0 || RosterReserve(2, 10, 3) != 0 {
		t.Fatal("unexpected roster reserve")
	}
}
