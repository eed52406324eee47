package resultpush

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
	"cricket-auction/internal/resultpush/platforms"
)

type sessionSubscription struct {
	meta   runtime.SessionMeta
	buf    *stream.EventBuffer
	ch     chan stream.StreamEvent
	cancel context.CancelFunc
}

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Manager pushes auction results and a live item panel to chat webhooks.
// It follows sessions as a runtime.SessionLifecycleObserver.
type Manager struct {
	cfg      Config
	clock    clockwork.Clock
	router   Router
	adapters map[string]platforms.Adapter

	dispatchCh chan pushJob
	retryQ     *retryQueue
	done       chan struct{}

	flushMu       sync.Mutex
	mu            sync.Mutex
	started       bool
	subscriptions map[string]*sessionSubscription
	panelByKey    map[string]*livePanelState
	breakerByKey  map[string]breakerState
}

var _ runtime.SessionLifecycleObserver = (*Manager)(nil)

func NewManager(cfg Config) *Manager {
	return NewManagerWithClock(cfg, clockwork.NewRealClock())
}

func NewManagerWithClock(cfg Config, clock clockwork.Clock) *Manager {
	client := platforms.NewHTTPClient(cfg.RequestTimeout)
	adapters := map[string]platforms.Adapter{
		"discord": platforms.NewDiscordAdapter(client),
		"feishu":  platforms.NewFeishuAdapter(client),
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.PanelUpdateInterval <= 0 {
		cfg.PanelUpdateInterval = 2 * time.Second
	}
	if cfg.PanelRecentBids <= 0 {
		cfg.PanelRecentBids = 5
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}

	m := &Manager{
		cfg:           cfg,
		clock:         clock,
		router:        Router{},
		adapters:      adapters,
		dispatchCh:    make(chan pushJob, cfg.DispatchBuffer),
		done:          make(chan struct{}),
		subscriptions: map[string]*sessionSubscription{},
		panelByKey:    map[string]*livePanelState{},
		breakerByKey:  map[string]breakerState{},
	}
	m.retryQ = newRetryQueue(clock, m.dispatchCh, m.done)
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		go m.worker(ctx)
	}
	if m.cfg.ConfigPath != "" {
		go m.watchConfigLoop(ctx)
	}
	go m.flushPanelsLoop(ctx)
	go func() {
		<-ctx.Done()
		close(m.done)
		m.stopAllSubscriptions()
	}()
	log.Info().Int("targets", len(m.cfg.Targets)).Int("workers", m.cfg.Workers).Msg("result push started")
	return nil
}

func (m *Manager) OnSessionOpened(meta runtime.SessionMeta, buf *stream.EventBuffer) {
	if !m.cfg.Enabled || buf == nil || meta.SessionID == "" {
		return
	}
	m.mu.Lock()
	if _, ok := m.subscriptions[meta.SessionID]; ok {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &sessionSubscription{
		meta:   meta,
		buf:    buf,
		ch:     buf.Subscribe(),
		cancel: cancel,
	}
	m.subscriptions[meta.SessionID] = sub
	m.mu.Unlock()

	go m.consumeSession(ctx, sub)
}

func (m *Manager) OnSessionClosed(sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	sub := m.subscriptions[sessionID]
	delete(m.subscriptions, sessionID)
	m.mu.Unlock()
	if sub == nil {
		return
	}
	sub.cancel()
	sub.buf.Unsubscribe(sub.ch)
}

func (m *Manager) stopAllSubscriptions() {
	m.mu.Lock()
	subs := make([]*sessionSubscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.subscriptions = map[string]*sessionSubscription{}
	m.panelByKey = map[string]*livePanelState{}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		sub.buf.Unsubscribe(sub.ch)
	}
}

func (m *Manager) consumeSession(ctx context.Context, sub *sessionSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			m.handleEvent(sub.meta, ev)
		}
	}
}

// handleEvent sends results as standalone messages and folds everything
// else into the session's live panel.
func (m *Manager) handleEvent(meta runtime.SessionMeta, ev stream.StreamEvent) {
	if !pushableEvents[ev.Event] {
		return
	}
	norm := normalizeEvent(meta, ev)
	targets := m.router.MatchTargets(m.currentTargets(), norm)
	if len(targets) == 0 {
		return
	}
	for _, target := range targets {
		m.accumulatePanel(target, norm)
		formatted, ok := FormatMessage(norm)
		if !ok {
			continue
		}
		if !m.enqueue(pushJob{Target: target, Event: norm, Formatted: formatted}) {
			metricPushDroppedTotal.Add(1)
		}
	}
	if norm.EventType == "session_complete" || norm.EventType == "session_closed" {
		m.flushDirtyPanels()
	}
}

var pushableEvents = map[string]bool{
	"item_advanced":    true,
	"bid_accepted":     true,
	"item_resolved":    true,
	"session_paused":   true,
	"session_resumed":  true,
	"session_complete": true,
	"session_closed":   true,
}

func (m *Manager) enqueue(job pushJob) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- job:
		metricPushQueuedTotal.Add(1)
		metricPushQueueLen.Set(int64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}

func normalizeEvent(meta runtime.SessionMeta, ev stream.StreamEvent) NormalizedEvent {
	raw := asMap(ev.Data)
	item := asMap(raw["item"])
	sessionID := stringField(raw, "session_id")
	if sessionID == "" {
		sessionID = meta.SessionID
	}
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	itemID := stringField(raw, "item_id")
	if itemID == "" {
		itemID = stringField(item, "item_id")
	}
	itemName := stringField(raw, "item_name")
	if itemName == "" {
		itemName = stringField(item, "name")
	}
	return NormalizedEvent{
		EventID:         ev.EventID,
		EventType:       ev.Event,
		ServerTS:        ev.ServerTS,
		SessionID:       sessionID,
		SessionName:     meta.Name,
		ItemID:          itemID,
		ItemName:        itemName,
		ItemRole:        stringField(item, "role"),
		BasePrice:       int64Ptr(item, "base_price"),
		Price:           int64Ptr(raw, "price"),
		Leader:          stringField(raw, "leader"),
		Winner:          stringField(raw, "winner"),
		Outcome:         stringField(raw, "outcome"),
		Reason:          stringField(raw, "reason"),
		TimeRemainingMS: int64Ptr(raw, "time_remaining_ms"),
		Position:        intPtr(raw, "position"),
		ItemsRemaining:  intPtr(raw, "items_remaining"),
		Sold:            intPtr(raw, "sold"),
		Unsold:          intPtr(raw, "unsold"),
		Raw:             raw,
	}
}

func (m *Manager) currentTargets() []PushTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushTarget, len(m.cfg.Targets))
	copy(out, m.cfg.Targets)
	return out
}

func (m *Manager) watchConfigLoop(ctx context.Context) {
	lastRaw := ""
	if raw, err := os.ReadFile(m.cfg.ConfigPath); err == nil {
		lastRaw = strings.TrimSpace(string(raw))
	}
	ticker := m.clock.NewTicker(m.cfg.ConfigReload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.Chan():
			raw, err := os.ReadFile(m.cfg.ConfigPath)
			if err != nil {
				metricPushConfigReloadError.Add(1)
				continue
			}
			nextRaw := strings.TrimSpace(string(raw))
			if nextRaw == lastRaw {
				continue
			}
			targets, err := parseTargetsJSON(nextRaw)
			if err != nil {
				metricPushConfigReloadError.Add(1)
				log.Warn().Err(err).Str("path", m.cfg.ConfigPath).Msg("result push config reload failed")
				continue
			}
			m.mu.Lock()
			m.cfg.Targets = targets
			m.mu.Unlock()
			lastRaw = nextRaw
			metricPushConfigReloadTotal.Add(1)
			log.Info().Int("targets", len(targets)).Msg("result push targets reloaded")
		}
	}
}

func asMap(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intPtr(m map[string]any, key string) *int {
	v := int64Ptr(m, key)
	if v == nil {
		return nil
	}
	x := int(*v)
	return &x
}

func int64Ptr(m map[string]any, key string) *int64 {
	var x int64
	switch vv := m[key].(type) {
	case float64:
		x = int64(vv)
	case int64:
		x = vv
	case int:
		x = int64(vv)
	default:
		return nil
	}
	return &x
}
