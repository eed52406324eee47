package resultpush

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
	"cricket-auction/internal/resultpush/platforms"
)

type fakeAdapter struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	forceFail bool
	messages  []platforms.Message
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Send(_ context.Context, _ string, _ string, msg platforms.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, msg)
	if f.forceFail || f.calls <= f.failFirst {
		return errors.New("fail")
	}
	return nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) Messages() []platforms.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platforms.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakeAdapter) SetForceFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceFail = v
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestManagerRetryThenSuccess(t *testing.T) {
	cfg := Config{
		Enabled:   true,
		Targets:   []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "all", Enabled: true}},
		Workers:   1,
		RetryMax:  2,
		RetryBase: 5 * time.Millisecond,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{failFirst: 1}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	ok := m.enqueue(pushJob{
		Target:    cfg.Targets[0],
		Event:     NormalizedEvent{EventType: "item_resolved", SessionID: "s1"},
		Formatted: FormattedMessage{Title: "title", Description: "summary"},
	})
	if !ok {
		t.Fatal("expected enqueue success")
	}
	if !waitFor(t, 500*time.Millisecond, func() bool { return fake.Calls() >= 2 }) {
		t.Fatalf("expected at least 2 calls, got %d", fake.Calls())
	}
}

func TestDisabledManagerIgnoresSessions(t *testing.T) {
	m := NewManager(Config{Enabled: false})
	buf := stream.NewEventBuffer(10)
	m.OnSessionOpened(runtime.SessionMeta{SessionID: "s1"}, buf)
	if len(m.subscriptions) != 0 {
		t.Fatal("disabled manager must not subscribe")
	}
}

func TestSessionObserverPushesSaleAndPanel(t *testing.T) {
	cfg := Config{
		Enabled:             true,
		Targets:             []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "session", ScopeValue: "s1", Enabled: true}},
		Workers:             1,
		RetryBase:           5 * time.Millisecond,
		PanelUpdateInterval: time.Hour,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	buf := stream.NewEventBuffer(50)
	m.OnSessionOpened(runtime.SessionMeta{SessionID: "s1", Name: "Mega Auction"}, buf)
	defer m.OnSessionClosed("s1")

	buf.Append("item_advanced", "s1", map[string]any{
		"item_id":           "p1",
		"item":              auction.Item{ID: "p1", Name: "Opener", Role: "batter", BasePrice: 100},
		"position":          1,
		"items_remaining":   1,
		"time_remaining_ms": 30000,
	})
	buf.Append("bid_accepted", "s1", map[string]any{"item_id": "p1", "price": 150, "leader": "A"})
	buf.Append("clock_tick", "s1", map[string]any{"time_remaining_ms": 1000})
	buf.Append("item_resolved", "s1", auction.ItemResolved{
		SessionID: "s1",
		ItemID:    "p1",
		ItemName:  "Opener",
		Outcome:   auction.OutcomeSold,
		WinnerID:  "A",
		Price:     150,
		BidCount:  1,
		Reason:    "clock_expired",
	})
	buf.Append("session_complete", "s1", auction.SessionCompletion{SessionID: "s1", Reason: "all_items_resolved", Sold: 1})

	var sale, complete, panel *platforms.Message
	waitFor(t, time.Second, func() bool {
		sale, complete, panel = nil, nil, nil
		for _, msg := range fake.Messages() {
			msg := msg
			switch {
			case msg.PanelKey != "":
				panel = &msg
			case strings.HasPrefix(msg.Title, "SOLD"):
				sale = &msg
			case strings.HasPrefix(msg.Title, "Auction Complete"):
				complete = &msg
			}
		}
		return sale != nil && complete != nil && panel != nil
	})
	if sale == nil {
		t.Fatal("expected a SOLD message")
	}
	if sale.Content != "Opener sold to A for 150" {
		t.Fatalf("unexpected sale content %q", sale.Content)
	}
	if complete == nil {
		t.Fatal("expected a completion message")
	}
	if panel == nil {
		t.Fatal("expected the final panel flush on completion")
	}
	if !strings.Contains(panel.Title, "Complete") {
		t.Fatalf("expected terminal panel, got %q", panel.Title)
	}
}

func TestOtherSessionsAreNotPushed(t *testing.T) {
	cfg := Config{
		Enabled:             true,
		Targets:             []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "session", ScopeValue: "s1", Enabled: true}},
		Workers:             1,
		PanelUpdateInterval: time.Hour,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	m.handleEvent(runtime.SessionMeta{SessionID: "s2"}, stream.StreamEvent{
		EventID: "1",
		Event:   "item_resolved",
		Data:    map[string]any{"item_id": "p1", "outcome": "unsold"},
	})
	time.Sleep(50 * time.Millisecond)
	if fake.Calls() != 0 {
		t.Fatalf("expected no pushes for another session, got %d", fake.Calls())
	}
}

func TestConfigFileAutoReloadAppliesWithoutRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
		t.Fatalf("write initial targets: %v", err)
	}

	cfg := Config{
		Enabled:             true,
		ConfigPath:          path,
		ConfigReload:        20 * time.Millisecond,
		Workers:             1,
		RetryBase:           5 * time.Millisecond,
		PanelUpdateInterval: time.Hour,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	meta := runtime.SessionMeta{SessionID: "s1", Name: "Mega Auction"}
	event := stream.StreamEvent{
		EventID:  "1",
		Event:    "item_resolved",
		ServerTS: time.Now().UnixMilli(),
		Data: map[string]any{
			"item_id":   "p1",
			"item_name": "Opener",
			"outcome":   "sold",
			"winner":    "A",
			"price":     300,
		},
	}

	m.handleEvent(meta, event)
	time.Sleep(40 * time.Millisecond)
	if fake.Calls() != 0 {
		t.Fatalf("expected no calls before config reload, got %d", fake.Calls())
	}

	updated := `[{"platform":"fake","endpoint":"https://example.com","scope_type":"session","scope_value":"s1","enabled":true}]`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("write updated targets: %v", err)
	}
	if !waitFor(t, 500*time.Millisecond, func() bool { return len(m.currentTargets()) == 1 }) {
		t.Fatal("expected reloaded targets in manager")
	}

	m.handleEvent(meta, event)
	if !waitFor(t, 500*time.Millisecond, func() bool { return fake.Calls() >= 1 }) {
		t.Fatalf("expected at least 1 call after reload, got %d", fake.Calls())
	}
}

func TestPanelUpdatesCoalesce(t *testing.T) {
	cfg := Config{
		Enabled:             true,
		Targets:             []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "all", Enabled: true}},
		Workers:             1,
		RetryBase:           5 * time.Millisecond,
		PanelUpdateInterval: 50 * time.Millisecond,
		PanelRecentBids:     5,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	meta := runtime.SessionMeta{SessionID: "s1"}
	now := time.Now().UnixMilli()
	for i := 0; i < 3; i++ {
		m.handleEvent(meta, stream.StreamEvent{
			EventID:  "e",
			Event:    "bid_accepted",
			ServerTS: now + int64(i),
			Data:     map[string]any{"item_id": "p1", "price": 100 + 10*i, "leader": "A"},
		})
	}

	time.Sleep(180 * time.Millisecond)
	msgs := fake.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected coalesced one send, got %d", len(msgs))
	}
	if msgs[0].PanelKey == "" {
		t.Fatal("expected panel message with panel key")
	}
}

func TestPanelResendAfterDrop(t *testing.T) {
	cfg := Config{
		Enabled:             true,
		Targets:             []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "all", Enabled: true}},
		Workers:             1,
		RetryBase:           5 * time.Millisecond,
		PanelUpdateInterval: 30 * time.Millisecond,
	}
	m := NewManager(cfg)
	fake := &fakeAdapter{forceFail: true}
	m.adapters = map[string]platforms.Adapter{"fake": fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	m.handleEvent(runtime.SessionMeta{SessionID: "s_drop"}, stream.StreamEvent{
		EventID:  "e1",
		Event:    "bid_accepted",
		ServerTS: time.Now().UnixMilli(),
		Data:     map[string]any{"item_id": "p1", "price": 100, "leader": "A"},
	})

	if !waitFor(t, 300*time.Millisecond, func() bool { return fake.Calls() > 0 }) {
		t.Fatal("expected at least one failed send attempt")
	}
	fake.SetForceFail(false)
	if !waitFor(t, 300*time.Millisecond, func() bool { return fake.Calls() >= 2 }) {
		t.Fatalf("expected resend after recovery, got calls=%d", fake.Calls())
	}
}
