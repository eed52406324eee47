package natsbus

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"
)

var metricPublished = expvar.NewInt("nats_auction_messages_published_total")

type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		StreamName:      "AUCTION_RESULTS",
		SubjectPrefix:   "auction",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          30 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Envelope is the body of every published message.
type Envelope struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher records auction results on a JetStream stream. It implements
// runtime.ResultSink; message ids make retried publishes idempotent within
// the duplicate window.
type Publisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config
}

func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("auction-server"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	p := &Publisher{nc: nc, js: js, cfg: cfg}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.cfg.StreamName,
		Description: "Auction outcomes, session status and registrations",
		Subjects:    []string{p.cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      p.cfg.MaxAge,
		Duplicates:  p.cfg.DuplicateWindow,
	})
	return err
}

// Subject is where a kind of message for a session is published, e.g.
// auction.outcomes.<session>.
func (p *Publisher) Subject(kind, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s", p.cfg.SubjectPrefix, kind, subjectToken(sessionID))
}

func (p *Publisher) RecordOutcome(ctx context.Context, res auction.ItemResolved) error {
	return p.publish(ctx, "outcomes", res.SessionID, res.SessionID+":"+res.ItemID, res)
}

func (p *Publisher) RecordSessionStatus(ctx context.Context, sessionID string, status auction.SessionStatus) error {
	return p.publish(ctx, "sessions", sessionID, sessionID+":"+string(status), map[string]any{"status": status})
}

func (p *Publisher) RecordRegistration(ctx context.Context, sessionID string, team ledger.Team) error {
	return p.publish(ctx, "registrations", sessionID, sessionID+":"+team.ID, team)
}

func (p *Publisher) publish(ctx context.Context, kind, sessionID, msgID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	data, err := json.Marshal(Envelope{Kind: kind, SessionID: sessionID, Timestamp: time.Now().UTC(), Payload: body})
	if err != nil {
		return err
	}
	subject := p.Subject(kind, sessionID)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Session-ID": []string{sessionID},
			"Kind":       []string{kind},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(p.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	metricPublished.Add(1)
	log.Debug().
		Str("subject", subject).
		Str("msg_id", msgID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// subjectToken keeps ids from adding subject levels or wildcards.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, id)
}
