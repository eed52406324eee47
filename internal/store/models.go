package store

import (
	"time"

	"cricket-auction/internal/auction"
)

type Team struct {
	ID         string    `json:"team_id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type Session struct {
	ID          string                `json:"session_id"`
	Name        string                `json:"name"`
	Status      auction.SessionStatus `json:"status"`
	Rules       auction.Rules         `json:"-"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// SessionTeam is a team's entry into one session with its purse.
type SessionTeam struct {
	SessionID  string `json:"session_id"`
	TeamID     string `json:"team_id"`
	Name       string `json:"name"`
	TotalPurse int64  `json:"total_purse"`
	MaxRoster  int    `json:"max_roster,omitempty"`
}
