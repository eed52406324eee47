package viewmodel

import (
	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"
)

type TeamView struct {
	TeamID    string `json:"team_id"`
	Name      string `json:"name"`
	Remaining int64  `json:"remaining_budget"`
	Acquired  int    `json:"players_acquired"`
	MaxRoster int    `json:"max_roster,omitempty"`
	IsLeader  bool   `json:"is_leader"`
}

type ItemView struct {
	ItemID       string `json:"item_id"`
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	BasePrice    int64  `json:"base_price"`
	CurrentPrice int64  `json:"current_price"`
	Leader       string `json:"leader,omitempty"`
	BidCount     int    `json:"bid_count"`
	Position     int    `json:"position"`
}

// TeamStateView is what a bidding team sees, including whether it can bid.
type TeamStateView struct {
	SessionID       string                `json:"session_id"`
	Status          string                `json:"status"`
	Phase           string                `json:"phase"`
	Paused          bool                  `json:"paused"`
	ActiveItem      *ItemView             `json:"active_item,omitempty"`
	TimeRemainingMS int64                 `json:"time_remaining_ms"`
	ItemDurationMS  int64                 `json:"item_duration_ms"`
	BidIncrement    int64                 `json:"bid_increment"`
	MinNextBid      int64                 `json:"min_next_bid,omitempty"`
	MyTeam          *ledger.Team          `json:"my_team,omitempty"`
	IsLeader        bool                  `json:"is_leader"`
	CanBid          bool                  `json:"can_bid"`
	BlockedReason   string                `json:"blocked_reason,omitempty"`
	Teams           []TeamView            `json:"teams"`
	ItemsRemaining  int                   `json:"items_remaining"`
	LastResolved    *auction.ItemResolved `json:"last_resolved,omitempty"`
}

type PublicStateView struct {
	SessionID       string                `json:"session_id"`
	Name            string                `json:"name,omitempty"`
	Status          string                `json:"status"`
	Phase           string                `json:"phase"`
	Paused          bool                  `json:"paused"`
	ActiveItem      *ItemView             `json:"active_item,omitempty"`
	TimeRemainingMS int64                 `json:"time_remaining_ms"`
	Teams           []TeamView            `json:"teams"`
	ItemsRemaining  int                   `json:"items_remaining"`
	LastResolved    *auction.ItemResolved `json:"last_resolved,omitempty"`
}

// MonitorStateView is the admin view: every item and the recent bids.
type MonitorStateView struct {
	PublicStateView
	BidIncrement int64          `json:"bid_increment"`
	MinRoster    int            `json:"min_roster,omitempty"`
	ReservePrice int64          `json:"reserve_price,omitempty"`
	Items        []auction.Item `json:"items"`
	RecentBids   []ledger.Bid   `json:"recent_bids"`
	Sold         int            `json:"sold"`
	Unsold       int            `json:"unsold"`
	TotalSpent   int64          `json:"total_spent"`
}

func BuildTeamState(snap auction.Snapshot, teamID string) TeamStateView {
	active := buildItem(snap.ActiveItem)
	out := TeamStateView{
		SessionID:       snap.SessionID,
		Status:          string(snap.Status),
		Phase:           string(snap.Phase),
		Paused:          snap.Paused,
		ActiveItem:      active,
		TimeRemainingMS: snap.TimeRemainingMS,
		ItemDurationMS:  snap.ItemDurationMS,
		BidIncrement:    snap.BidIncrement,
		Teams:           buildTeams(snap),
		ItemsRemaining:  snap.ItemsRemaining,
		LastResolved:    snap.LastResolved,
	}
	if active != nil {
		out.MinNextBid = auction.MinNextBid(active.CurrentPrice, snap.BidIncrement)
		out.IsLeader = active.Leader != "" && active.Leader == teamID
	}
	for _, t := range snap.Teams {
		if t.ID == teamID {
			team := t
			out.MyTeam = &team
			break
		}
	}
	out.BlockedReason = blockedReason(snap, out)
	out.CanBid = out.BlockedReason == ""
	return out
}

// blockedReason mirrors the engine's checks for the cheapest legal bid. It
// is a hint for clients; the engine stays authoritative.
func blockedReason(snap auction.Snapshot, v TeamStateView) string {
	switch {
	case snap.Phase != auction.PhaseItemOpen || snap.Paused || v.ActiveItem == nil:
		return auction.ErrInvalidTransition.Error()
	case v.MyTeam == nil:
		return auction.ErrUnauthorized.Error()
	case v.MyTeam.Remaining-v.MinNextBid < auction.RosterReserve(snap.MinRoster, snap.ReservePrice, v.MyTeam.Acquired):
		return auction.ErrInsufficientBudget.Error()
	case v.IsLeader:
		return auction.ErrSelfOutbid.Error()
	case v.MyTeam.RosterFull():
		return auction.ErrRosterFull.Error()
	}
	return ""
}

func BuildPublicState(snap auction.Snapshot) PublicStateView {
	return PublicStateView{
		SessionID:       snap.SessionID,
		Name:            snap.Name,
		Status:          string(snap.Status),
		Phase:           string(snap.Phase),
		Paused:          snap.Paused,
		ActiveItem:      buildItem(snap.ActiveItem),
		TimeRemainingMS: snap.TimeRemainingMS,
		Teams:           buildTeams(snap),
		ItemsRemaining:  snap.ItemsRemaining,
		LastResolved:    snap.LastResolved,
	}
}

func BuildMonitorState(snap auction.Snapshot) MonitorStateView {
	out := MonitorStateView{
		PublicStateView: BuildPublicState(snap),
		BidIncrement:    snap.BidIncrement,
		MinRoster:       snap.MinRoster,
		ReservePrice:    snap.ReservePrice,
		Items:           snap.Items,
		RecentBids:      snap.RecentBids,
	}
	if out.RecentBids == nil {
		out.RecentBids = []ledger.Bid{}
	}
	for _, it := range snap.Items {
		switch it.Status {
		case auction.ItemSold:
			out.Sold++
			out.TotalSpent += it.FinalPrice
		case auction.ItemUnsold:
			out.Unsold++
		}
	}
	return out
}

func buildItem(a *auction.ActiveItem) *ItemView {
	if a == nil {
		return nil
	}
	return &ItemView{
		ItemID:       a.ID,
		Name:         a.Name,
		Role:         a.Role,
		BasePrice:    a.BasePrice,
		CurrentPrice: a.CurrentPrice,
		Leader:       a.LeaderID,
		BidCount:     a.BidCount,
		Position:     a.Position,
	}
}

func buildTeams(snap auction.Snapshot) []TeamView {
	leader := ""
	if snap.ActiveItem != nil {
		leader = snap.ActiveItem.LeaderID
	}
	teams := make([]TeamView, 0, len(snap.Teams))
	for _, t := range snap.Teams {
		teams = append(teams, TeamView{
			TeamID:    t.ID,
			Name:      t.Name,
			Remaining: t.Remaining,
			Acquired:  t.Acquired,
			MaxRoster: t.MaxRoster,
			IsLeader:  leader != "" && t.ID == leader,
		})
	}
	return teams
}
