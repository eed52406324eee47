package resultpush

import (
	"context"
	"fmt"
	"strings"
)

// livePanelState is one edited-in-place message per target and session
// showing the item under the hammer.
type livePanelState struct {
	key         string
	target      PushTarget
	sessionID   string
	sessionName string
	itemID      string
	itemName    string
	itemRole    string
	basePrice   *int64
	price       *int64
	leader      string
	remainingMS *int64
	position    *int
	left        *int
	state       string
	lastResult  string
	lastTS      int64
	recent      []string
	dirty       bool
	inflight    bool
	terminal    bool
}

func (m *Manager) accumulatePanel(target PushTarget, ev NormalizedEvent) {
	if ev.SessionID == "" {
		return
	}
	panelKey := targetKey(target) + "|" + ev.SessionID

	m.mu.Lock()
	defer m.mu.Unlock()

	panel := m.panelByKey[panelKey]
	if panel == nil {
		panel = &livePanelState{
			key:         panelKey,
			target:      target,
			sessionID:   ev.SessionID,
			sessionName: ev.SessionName,
			state:       "waiting",
			recent:      make([]string, 0, m.cfg.PanelRecentBids),
		}
		m.panelByKey[panelKey] = panel
	}
	if panel.terminal {
		return
	}
	panel.target = target
	if ev.ServerTS > panel.lastTS {
		panel.lastTS = ev.ServerTS
	}
	if ev.TimeRemainingMS != nil {
		panel.remainingMS = ev.TimeRemainingMS
	}

	switch ev.EventType {
	case "item_advanced":
		panel.itemID = ev.ItemID
		panel.itemName = ev.ItemName
		panel.itemRole = ev.ItemRole
		panel.basePrice = ev.BasePrice
		panel.price = nil
		panel.leader = ""
		panel.position = ev.Position
		panel.left = ev.ItemsRemaining
		panel.recent = panel.recent[:0]
		panel.state = "open"
	case "bid_accepted":
		panel.price = ev.Price
		panel.leader = ev.Leader
		panel.recent = append(panel.recent, fmt.Sprintf("%s bid %s", fallback(ev.Leader, "-"), amountText(ev.Price)))
		if len(panel.recent) > m.cfg.PanelRecentBids {
			panel.recent = panel.recent[len(panel.recent)-m.cfg.PanelRecentBids:]
		}
	case "item_resolved":
		panel.state = fallback(ev.Outcome, "resolved")
		panel.remainingMS = nil
		if ev.Outcome == "sold" {
			panel.lastResult = fmt.Sprintf("%s sold to %s for %s", fallback(ev.ItemName, ev.ItemID), fallback(ev.Winner, "-"), amountText(ev.Price))
		} else {
			panel.lastResult = fmt.Sprintf("%s unsold", fallback(ev.ItemName, ev.ItemID))
		}
	case "session_paused":
		panel.state = "paused"
	case "session_resumed":
		panel.state = "open"
	case "session_complete", "session_closed":
		panel.state = "complete"
	}
	panel.dirty = true
}

func (m *Manager) flushPanelsLoop(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.PanelUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.Chan():
			m.flushDirtyPanels()
		}
	}
}

// flushDirtyPanels queues one update per changed panel. A panel with an
// update in flight waits for the next tick so edits never race.
func (m *Manager) flushDirtyPanels() {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	type flushItem struct {
		key       string
		target    PushTarget
		sessionID string
		formatted FormattedMessage
		terminal  bool
	}
	items := make([]flushItem, 0)

	m.mu.Lock()
	for key, panel := range m.panelByKey {
		if panel == nil || !panel.dirty || panel.terminal || panel.inflight {
			continue
		}
		panel.inflight = true
		items = append(items, flushItem{
			key:       key,
			target:    panel.target,
			sessionID: panel.sessionID,
			formatted: formatPanelMessage(panel),
			terminal:  panel.state == "complete",
		})
	}
	m.mu.Unlock()

	for _, it := range items {
		job := pushJob{
			Target:        it.target,
			Event:         NormalizedEvent{EventType: "panel_update", SessionID: it.sessionID},
			Formatted:     it.formatted,
			PanelStateKey: it.key,
			PanelTerminal: it.terminal,
		}
		if !m.enqueue(job) {
			metricPushDroppedTotal.Add(1)
			m.mu.Lock()
			if panel := m.panelByKey[it.key]; panel != nil {
				panel.inflight = false
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) markPanelDeliverySuccess(job pushJob) {
	if job.PanelStateKey == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	panel := m.panelByKey[job.PanelStateKey]
	if panel == nil {
		return
	}
	panel.inflight = false
	panel.dirty = false
	if job.PanelTerminal {
		delete(m.panelByKey, job.PanelStateKey)
	}
}

func (m *Manager) markPanelDeliveryDropped(job pushJob) {
	if job.PanelStateKey == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if panel := m.panelByKey[job.PanelStateKey]; panel != nil {
		panel.inflight = false
		panel.dirty = true
	}
}

func formatPanelMessage(panel *livePanelState) FormattedMessage {
	if panel == nil {
		return FormattedMessage{}
	}
	item := fallback(panel.itemName, fallback(panel.itemID, "No player yet"))
	current := "-"
	if panel.price != nil {
		current = amountText(panel.price)
	} else if panel.basePrice != nil {
		current = amountText(panel.basePrice) + " (base)"
	}
	fields := []MessageField{
		{Name: "🏏 Player", Value: item + roleSuffix(panel.itemRole), Inline: true},
		{Name: "💰 Price", Value: current, Inline: true},
		{Name: "👑 Leader", Value: fallback(panel.leader, "No bids yet"), Inline: true},
		{Name: "⏱ Clock", Value: clockText(panel.remainingMS, panel.state), Inline: true},
		{Name: "📋 Queue", Value: queueText(panel.position, panel.left), Inline: true},
	}
	if panel.lastResult != "" {
		fields = append(fields, MessageField{Name: "🔨 Last Result", Value: panel.lastResult, Inline: false})
	}
	bids := "No bids yet"
	if len(panel.recent) > 0 {
		bids = strings.Join(panel.recent, "\n")
	}
	fields = append(fields, MessageField{Name: "📜 Recent Bids", Value: bids, Inline: false})

	color := colorOpen
	switch panel.state {
	case "paused":
		color = colorPaused
	case "sold":
		color = colorSold
	case "unsold":
		color = colorUnsold
	case "complete":
		color = colorComplete
	}
	name := fallback(panel.sessionName, "Session "+shortID(panel.sessionID, 6))
	return FormattedMessage{
		PanelKey:    panel.key,
		Title:       fmt.Sprintf("%s | %s", name, statusBadge(panel.state)),
		Description: fmt.Sprintf("%s | %s | %s", item, current, fallback(panel.leader, "no leader")),
		Color:       color,
		Timestamp:   eventTimestamp(panel.lastTS),
		Footer:      fmt.Sprintf("session:%s | item:%s", shortID(fallback(panel.sessionID, "-"), 8), shortID(fallback(panel.itemID, "-"), 8)),
		Fields:      fields,
	}
}

func roleSuffix(role string) string {
	if strings.TrimSpace(role) == "" {
		return ""
	}
	return " (" + role + ")"
}

func clockText(ms *int64, state string) string {
	if state != "open" && state != "paused" {
		return "-"
	}
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%ds", (*ms+999)/1000)
}

func queueText(position, left *int) string {
	if position == nil {
		return "-"
	}
	if left == nil {
		return fmt.Sprintf("#%d", *position)
	}
	return fmt.Sprintf("#%d, %d left", *position, *left)
}

func statusBadge(state string) string {
	switch state {
	case "open":
		return "🟢 Bidding"
	case "paused":
		return "🟡 Paused"
	case "sold":
		return "🔨 Sold"
	case "unsold":
		return "⚪ Unsold"
	case "complete":
		return "🔴 Complete"
	default:
		return "⚪ Waiting"
	}
}
