package ledger

import (
	"errors"
	"sync"
)

var (
	ErrDuplicateCommit = errors.New("duplicate_commit")
	ErrUnknownTeam     = errors.New("team_not_registered")
	ErrTeamExists      = errors.New("team_already_registered")
	ErrOverdraw        = errors.New("insufficient_budget")
	ErrInvalidTeam     = errors.New("invalid_team")
)

// Team is a registration within one auction session.
type Team struct {
	ID         string `json:"team_id"`
	Name       string `json:"name"`
	TotalPurse int64  `json:"total_purse"`
	Remaining  int64  `json:"remaining_budget"`
	Acquired   int    `json:"players_acquired"`
	MaxRoster  int    `json:"max_roster"`
}

// RosterFull reports whether the team has no free roster slot. A zero
// MaxRoster means unlimited.
func (t Team) RosterFull() bool {
	return t.MaxRoster > 0 && t.Acquired >= t.MaxRoster
}

type commit struct {
	teamID string
	amount int64
}

// BudgetLedger tracks purses and roster counts. Commits are keyed by item id.
type BudgetLedger struct {
	mu      sync.RWMutex
	teams   map[string]*Team
	order   []string
	commits map[string]commit
}

func NewBudgetLedger() *BudgetLedger {
	return &BudgetLedger{
		teams:   map[string]*Team{},
		commits: map[string]commit{},
	}
}

func (b *BudgetLedger) Register(t Team) error {
	if t.ID == "" || t.TotalPurse < 0 || t.Remaining < 0 || t.Remaining > t.TotalPurse || t.Acquired < 0 {
		return ErrInvalidTeam
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.teams[t.ID]; ok {
		return ErrTeamExists
	}
	team := t
	b.teams[t.ID] = &team
	b.order = append(b.order, t.ID)
	return nil
}

// Reserve is a pure check that the team could pay amount now.
func (b *BudgetLedger) Reserve(teamID string, amount int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.teams[teamID]
	if t == nil || amount < 0 {
		return false
	}
	return amount <= t.Remaining
}

// Commit debits the winner of itemID once. Replays return ErrDuplicateCommit
// and leave the ledger untouched.
func (b *BudgetLedger) Commit(itemID, teamID string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.commits[itemID]; ok {
		return ErrDuplicateCommit
	}
	t := b.teams[teamID]
	if t == nil {
		return ErrUnknownTeam
	}
	if amount < 0 || amount > t.Remaining {
		return ErrOverdraw
	}
	t.Remaining -= amount
	t.Acquired++
	b.commits[itemID] = commit{teamID: teamID, amount: amount}
	return nil
}

// MarkCommitted records an outcome applied before this ledger was built, so
// a later replay of the same item is ignored.
func (b *BudgetLedger) MarkCommitted(itemID, teamID string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commits[itemID] = commit{teamID: teamID, amount: amount}
}

func (b *BudgetLedger) Team(teamID string) (Team, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.teams[teamID]
	if t == nil {
		return Team{}, false
	}
	return *t, true
}

// Teams returns registrations in registration order.
func (b *BudgetLedger) Teams() []Team {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Team, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.teams[id])
	}
	return out
}

// Spent returns Σ committed amounts for the team.
func (b *BudgetLedger) Spent(teamID string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sum int64
	for _, c := range b.commits {
		if c.teamID == teamID {
			sum += c.amount
		}
	}
	return sum
}
