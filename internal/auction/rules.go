package auction

import (
	"fmt"
	"math"
)

// ValidateBid runs every bid check against the engine without mutating it.
// Checks run in a fixed order so a client always sees the same reason for
// the same state.
func ValidateBid(e *Engine, teamID string, amount int64) error {
	if e.phase != PhaseItemOpen || e.paused {
		return ErrInvalidTransition
	}
	item, ok := e.seq.Active()
	if !ok {
		return ErrInvalidTransition
	}
	team, ok := e.budgets.Team(teamID)
	if !ok {
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrTeamNotRegistered)
	}
	price := e.currentPrice(item)
	if amount <= price {
		return ErrStaleBid
	}
	if inc := e.rules.BidIncrement; inc > 0 && amount-price < inc {
		return ErrBelowIncrement
	}
	if !e.budgets.Reserve(teamID, amount) {
		return ErrInsufficientBudget
	}
	if reserve := RosterReserve(e.rules.MinRoster, e.rules.ReservePrice, team.Acquired); team.Remaining-amount < reserve {
		return ErrInsufficientBudget
	}
	if leader, ok := e.bids.CurrentLeader(item.ID); ok && leader == teamID {
		return ErrSelfOutbid
	}
	if team.RosterFull() {
		return ErrRosterFull
	}
	return nil
}

// RosterReserve is the purse a team must keep back to fill its remaining
// mandatory slots at the reserve price, counting the item being bid on.
func RosterReserve(minRoster int, reservePrice int64, acquired int) int64 {
	if minRoster <= 0 || reservePrice <= 0 {
		return 0
	}
	open := minRoster - acquired - 1
	if open <= 0 {
		return 0
	}
	return int64(open) * reservePrice
}

// MinNextBid is the smallest amount that passes the price checks. It
// saturates at math.MaxInt64.
func MinNextBid(price, increment int64) int64 {
	if increment <= 0 {
		increment = 1
	}
	if price > math.MaxInt64-increment {
		return math.MaxInt64
	}
	return price + increment
}
