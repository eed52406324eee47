package ws

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/auction/viewmodel"
	"cricket-auction/internal/bidgateway/policy"
	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueue      = 64
	submitTimeout  = 5 * time.Second
)

var (
	wsConnectionsActive = expvar.NewInt("ws_connections_active")
	wsConnectionsTotal  = expvar.NewInt("ws_connections_total")
	wsMessagesIn        = expvar.NewInt("ws_messages_in_total")
	wsSlowConsumers     = expvar.NewInt("ws_slow_consumer_disconnects_total")
)

// Coordinator is the part of the bid runtime a socket needs.
type Coordinator interface {
	Open(ctx context.Context, sessionID string) (*stream.EventBuffer, error)
	SnapshotAt(ctx context.Context, sessionID string) (auction.Snapshot, string, error)
	Submit(ctx context.Context, sessionID string, who policy.Identity, in runtime.Intent) (runtime.Result, error)
}

type Client struct {
	id        string
	conn      *websocket.Conn
	who       policy.Identity
	sessionID string
	buf       *stream.EventBuffer
	events    chan stream.StreamEvent

	// order keeps snapshots and forwarded deltas in sequence; seen is the
	// newest event the last snapshot covered.
	order sync.Mutex
	seen  int64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue never blocks. A full queue disconnects the client; it can
// reconnect and start from a fresh snapshot.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		wsSlowConsumers.Add(1)
		c.closed = true
		close(c.send)
		return false
	}
}

// forward sends a streamed event unless the last snapshot already
// reflects it.
func (c *Client) forward(ev stream.StreamEvent) bool {
	c.order.Lock()
	defer c.order.Unlock()
	if stream.Seq(ev.EventID) <= c.seen {
		return true
	}
	msg, err := encodeEvent(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("ws encode event failed")
		return true
	}
	return c.enqueue(msg)
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type Server struct {
	coord    Coordinator
	auth     policy.Authenticator
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewServer(coord Coordinator, auth policy.Authenticator) *Server {
	return &Server{
		coord:    coord,
		auth:     auth,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  map[*Client]struct{}{},
	}
}

// HandleWS authenticates before upgrading so a bad key gets a plain 401.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	who, err := s.auth.Authenticate(r.Context(), policy.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	buf, err := s.coord.Open(r.Context(), sessionID)
	if err != nil {
		status, code := runtime.MapIntentError(err)
		http.Error(w, code, status)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		id:        uuid.NewString(),
		conn:      conn,
		who:       who,
		sessionID: sessionID,
		buf:       buf,
		send:      make(chan []byte, sendQueue),
	}
	// Subscribe before the snapshot so no delta falls in the gap; deltas the
	// snapshot already covers are skipped on forward.
	client.events = buf.Subscribe()
	s.register(client)
	log.Info().
		Str("conn_id", client.id).
		Str("session_id", sessionID).
		Str("role", string(who.Role)).
		Str("team_id", who.TeamID).
		Msg("ws connected")

	if err := s.sendSnapshot(r.Context(), client); err != nil {
		log.Warn().Err(err).Str("conn_id", client.id).Msg("ws initial snapshot failed")
	}
	go s.writeLoop(client)
	go s.forwardLoop(client)
	s.readLoop(client)
}

// ConnectionCount is the number of live sockets.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	wsConnectionsActive.Add(1)
	wsConnectionsTotal.Add(1)
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if !ok {
		return
	}
	wsConnectionsActive.Add(-1)
	c.buf.Unsubscribe(c.events)
	c.shutdown()
	log.Info().Str("conn_id", c.id).Str("session_id", c.sessionID).Msg("ws disconnected")
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws read failed")
			}
			return
		}
		wsMessagesIn.Add(1)
		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(c, "error", IntentRejected{Reason: "invalid_json"})
			continue
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) handleMessage(c *Client, msg InboundMessage) {
	if msg.Type == "sync" {
		if err := s.sendSnapshot(context.Background(), c); err != nil {
			_, code := runtime.MapIntentError(err)
			s.reply(c, "intent_rejected", IntentRejected{Intent: "sync", Reason: code})
		}
		return
	}
	kind, ok := intentFor(msg.Type)
	if !ok {
		s.reply(c, "intent_rejected", IntentRejected{Intent: msg.Type, RequestID: msg.RequestID, Reason: "invalid_intent"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	res, err := s.coord.Submit(ctx, c.sessionID, c.who, runtime.Intent{
		Kind:      kind,
		RequestID: msg.RequestID,
		Amount:    msg.Amount,
	})
	if err != nil {
		_, code := runtime.MapIntentError(err)
		if kind == runtime.IntentSubmitBid {
			s.reply(c, "bid_rejected", BidRejected{RequestID: msg.RequestID, Amount: msg.Amount, Reason: code})
		} else {
			s.reply(c, "intent_rejected", IntentRejected{Intent: string(kind), RequestID: msg.RequestID, Reason: code})
		}
		return
	}
	s.reply(c, "intent_ack", IntentAck{
		Intent:    string(kind),
		RequestID: msg.RequestID,
		Duplicate: res.Duplicate,
		Result:    res,
	})
}

func (s *Server) reply(c *Client, kind string, data any) {
	msg, err := encodeReply(kind, c.sessionID, c.buf.Now().UnixMilli(), data)
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("ws encode reply failed")
		return
	}
	c.enqueue(msg)
}

// sendSnapshot sends the state view that matches the client's role.
func (s *Server) sendSnapshot(ctx context.Context, c *Client) error {
	snap, cursor, err := s.coord.SnapshotAt(ctx, c.sessionID)
	if err != nil {
		return err
	}
	var view any
	switch {
	case c.who.IsAdmin():
		view = viewmodel.BuildMonitorState(snap)
	case c.who.IsTeam():
		view = viewmodel.BuildTeamState(snap, c.who.TeamID)
	default:
		view = viewmodel.BuildPublicState(snap)
	}
	c.order.Lock()
	defer c.order.Unlock()
	if seq := stream.Seq(cursor); seq > c.seen {
		c.seen = seq
	}
	s.reply(c, "snapshot", view)
	return nil
}

func (s *Server) forwardLoop(c *Client) {
	for ev := range c.events {
		if !c.forward(ev) {
			break
		}
	}
	// Buffer closed or client gone: end the write side.
	c.shutdown()
}

func (s *Server) writeLoop(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
