package resultpush

import "time"

type PushTarget struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

type Config struct {
	Enabled             bool
	ConfigPath          string
	ConfigReload        time.Duration
	Targets             []PushTarget
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	PanelUpdateInterval time.Duration
	PanelRecentBids     int
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

// NormalizedEvent flattens the broadcast payloads the pusher cares about.
type NormalizedEvent struct {
	EventID         string
	EventType       string
	ServerTS        int64
	SessionID       string
	SessionName     string
	ItemID          string
	ItemName        string
	ItemRole        string
	BasePrice       *int64
	Price           *int64
	Leader          string
	Winner          string
	Outcome         string
	Reason          string
	TimeRemainingMS *int64
	Position        *int
	ItemsRemaining  *int
	Sold            *int
	Unsold          *int
	Raw             map[string]any
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

type FormattedMessage struct {
	PanelKey    string
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []MessageField
}

type pushJob struct {
	Target        PushTarget
	Event         NormalizedEvent
	Formatted     FormattedMessage
	Attempt       int
	PanelStateKey string
	PanelTerminal bool
}

func (j pushJob) key() string {
	return targetKey(j.Target)
}

func targetKey(t PushTarget) string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}
