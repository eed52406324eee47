package stream

import (
	"expvar"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var metricEventsDropped = expvar.NewInt("stream_events_dropped_total")

const watcherQueue = 64

// StreamEvent is one authoritative delta. EventID increases by one per
// buffer and doubles as the SSE id.
type StreamEvent struct {
	EventID   string `json:"event_id"`
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	ServerTS  int64  `json:"server_ts"`
	Data      any    `json:"data"`
}

// EventBuffer keeps the last max events of a session for replay and fans
// new ones out to subscribers. A subscriber that falls behind loses events
// and must resync from a snapshot.
type EventBuffer struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	nextID   int64
	max      int
	events   []StreamEvent
	watchers map[chan StreamEvent]struct{}
	closed   bool
}

func NewEventBuffer(max int) *EventBuffer {
	return NewEventBufferWithClock(max, clockwork.NewRealClock())
}

func NewEventBufferWithClock(max int, clk clockwork.Clock) *EventBuffer {
	if max <= 0 {
		max = 500
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &EventBuffer{
		clock:    clk,
		max:      max,
		watchers: map[chan StreamEvent]struct{}{},
	}
}

func (b *EventBuffer) Append(event, sessionID string, data any) StreamEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return StreamEvent{}
	}
	b.nextID++
	ev := StreamEvent{
		EventID:   strconv.FormatInt(b.nextID, 10),
		Event:     event,
		SessionID: sessionID,
		ServerTS:  b.clock.Now().UnixMilli(),
		Data:      data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
			metricEventsDropped.Add(1)
		}
	}
	return ev
}

// ReplayAfter returns buffered events newer than lastEventID, or all of them
// when the id is empty or unparseable.
func (b *EventBuffer) ReplayAfter(lastEventID string) []StreamEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]StreamEvent, len(b.events))
		copy(out, b.events)
		return out
	}
	out := make([]StreamEvent, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

// Seq is the numeric position of an event id, zero when it is empty or
// not one of ours.
func Seq(eventID string) int64 {
	n, err := strconv.ParseInt(eventID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// LastEventID is the id of the newest event, empty before the first append.
func (b *EventBuffer) LastEventID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextID == 0 {
		return ""
	}
	return strconv.FormatInt(b.nextID, 10)
}

func (b *EventBuffer) Subscribe() chan StreamEvent {
	ch := make(chan StreamEvent, watcherQueue)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *EventBuffer) Unsubscribe(ch chan StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *EventBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *EventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

// Now is the buffer clock, shared with ping events.
func (b *EventBuffer) Now() time.Time {
	return b.clock.Now()
}
