package redismirror

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
)

var (
	ErrNoSnapshot = errors.New("no cached snapshot")

	metricMirrored     = expvar.NewInt("redis_mirror_events_total")
	metricMirrorErrors = expvar.NewInt("redis_mirror_errors_total")
)

const writeTimeout = 2 * time.Second

// Connect opens a client and checks it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Mirror copies every session's broadcast events to a Redis channel and
// keeps the latest public state under a key, so other nodes and tools can
// follow an auction they do not host.
type Mirror struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string

	mu   sync.Mutex
	subs map[string]subscription
	wg   sync.WaitGroup
}

type subscription struct {
	buf *stream.EventBuffer
	ch  chan stream.StreamEvent
}

var _ runtime.SessionLifecycleObserver = (*Mirror)(nil)

func New(rdb *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Mirror{rdb: rdb, ttl: ttl, prefix: "auction", subs: map[string]subscription{}}
}

func (m *Mirror) EventsChannel(sessionID string) string {
	return m.prefix + ":events:" + sessionID
}

func (m *Mirror) StateKey(sessionID string) string {
	return m.prefix + ":state:" + sessionID
}

func (m *Mirror) OnSessionOpened(meta runtime.SessionMeta, buf *stream.EventBuffer) {
	ch := buf.Subscribe()
	m.mu.Lock()
	if old, ok := m.subs[meta.SessionID]; ok {
		old.buf.Unsubscribe(old.ch)
	}
	m.subs[meta.SessionID] = subscription{buf: buf, ch: ch}
	m.mu.Unlock()

	// Seed the cache with whatever state the buffer already holds.
	replay := buf.ReplayAfter("")
	for i := len(replay) - 1; i >= 0; i-- {
		if replay[i].Event == "state_snapshot" {
			m.mirror(replay[i], false)
			break
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for ev := range ch {
			m.mirror(ev, true)
		}
	}()
}

func (m *Mirror) OnSessionClosed(sessionID string) {
	m.mu.Lock()
	sub, ok := m.subs[sessionID]
	delete(m.subs, sessionID)
	m.mu.Unlock()
	if ok {
		sub.buf.Unsubscribe(sub.ch)
	}
}

func (m *Mirror) mirror(ev stream.StreamEvent, publish bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	if publish {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("event", ev.Event).Msg("redis mirror marshal failed")
			return
		}
		pipe.Publish(ctx, m.EventsChannel(ev.SessionID), payload)
	}
	if ev.Event == "state_snapshot" {
		state, err := json.Marshal(ev.Data)
		if err != nil {
			log.Error().Err(err).Msg("redis mirror marshal state failed")
			return
		}
		pipe.Set(ctx, m.StateKey(ev.SessionID), state, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metricMirrorErrors.Add(1)
		log.Warn().Err(err).Str("session_id", ev.SessionID).Str("event", ev.Event).Msg("redis mirror write failed")
		return
	}
	metricMirrored.Add(1)
}

// LatestSnapshot returns the cached public state JSON of a session.
func (m *Mirror) LatestSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := m.rdb.Get(ctx, m.StateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	return raw, err
}

// Close stops mirroring every session and waits for in-flight writes.
func (m *Mirror) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = map[string]subscription{}
	m.mu.Unlock()
	for _, sub := range subs {
		sub.buf.Unsubscribe(sub.ch)
	}
	m.wg.Wait()
}
