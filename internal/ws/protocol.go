package ws

import (
	"encoding/json"

	"cricket-auction/internal/bidgateway/runtime"
	"cricket-auction/internal/bidgateway/stream"
)

const ProtocolVersion = "1.0"

// InboundMessage is every client frame. Only Type is required.
type InboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
}

// OutboundMessage wraps both broadcast deltas and sender-only replies.
type OutboundMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EventID         string `json:"event_id,omitempty"`
	SessionID       string `json:"session_id"`
	ServerTS        int64  `json:"server_ts,omitempty"`
	Data            any    `json:"data,omitempty"`
}

type BidRejected struct {
	RequestID string `json:"request_id,omitempty"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

type IntentRejected struct {
	Intent    string `json:"intent"`
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason"`
}

type IntentAck struct {
	Intent    string         `json:"intent"`
	RequestID string         `json:"request_id,omitempty"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Result    runtime.Result `json:"result"`
}

func encodeEvent(ev stream.StreamEvent) ([]byte, error) {
	return json.Marshal(OutboundMessage{
		Type:            ev.Event,
		ProtocolVersion: ProtocolVersion,
		EventID:         ev.EventID,
		SessionID:       ev.SessionID,
		ServerTS:        ev.ServerTS,
		Data:            ev.Data,
	})
}

func encodeReply(kind, sessionID string, ts int64, data any) ([]byte, error) {
	return json.Marshal(OutboundMessage{
		Type:            kind,
		ProtocolVersion: ProtocolVersion,
		SessionID:       sessionID,
		ServerTS:        ts,
		Data:            data,
	})
}

// intentFor maps a wire type to an intent kind. sync is handled by the
// connection itself.
func intentFor(msgType string) (runtime.IntentKind, bool) {
	kind := runtime.IntentKind(msgType)
	if kind == runtime.IntentRegisterTeam {
		return "", false
	}
	return kind, kind.Valid()
}
