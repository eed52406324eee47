package ledger

import (
	"errors"
	"iter"
	"sync"
	"time"
)

var (
	ErrNonIncreasing = errors.New("non_increasing_bid")
	ErrInvalidBid    = errors.New("invalid_bid")
)

// Bid is an accepted bid. Seq starts at 1 per item.
type Bid struct {
	ItemID string    `json:"item_id"`
	TeamID string    `json:"team_id"`
	Amount int64     `json:"amount"`
	Seq    int64     `json:"seq"`
	At     time.Time `json:"at"`
}

type itemLog struct {
	bids []Bid
	head Bid
}

// BidLedger is an append-only log of accepted bids per item.
type BidLedger struct {
	mu    sync.RWMutex
	items map[string]*itemLog
	total int
}

func NewBidLedger() *BidLedger {
	return &BidLedger{items: map[string]*itemLog{}}
}

// Append records a bid whose amount must exceed the current head.
func (l *BidLedger) Append(itemID, teamID string, amount int64, at time.Time) (Bid, error) {
	if itemID == "" || teamID == "" || amount <= 0 {
		return Bid{}, ErrInvalidBid
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.items[itemID]
	if entries == nil {
		entries = &itemLog{}
		l.items[itemID] = entries
	}
	if len(entries.bids) > 0 && amount <= entries.head.Amount {
		return Bid{}, ErrNonIncreasing
	}
	bid := Bid{
		ItemID: itemID,
		TeamID: teamID,
		Amount: amount,
		Seq:    int64(len(entries.bids)) + 1,
		At:     at,
	}
	entries.bids = append(entries.bids, bid)
	entries.head = bid
	l.total++
	return bid, nil
}

func (l *BidLedger) CurrentPrice(itemID string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.items[itemID]
	if entries == nil || len(entries.bids) == 0 {
		return 0, false
	}
	return entries.head.Amount, true
}

func (l *BidLedger) CurrentLeader(itemID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.items[itemID]
	if entries == nil || len(entries.bids) == 0 {
		return "", false
	}
	return entries.head.TeamID, true
}

func (l *BidLedger) Head(itemID string) (Bid, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.items[itemID]
	if entries == nil || len(entries.bids) == 0 {
		return Bid{}, false
	}
	return entries.head, true
}

func (l *BidLedger) Count(itemID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entries := l.items[itemID]; entries != nil {
		return len(entries.bids)
	}
	return 0
}

func (l *BidLedger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// History yields the item's bids most recent first. Each range sees the bids
// that existed when it started.
func (l *BidLedger) History(itemID string) iter.Seq[Bid] {
	return func(yield func(Bid) bool) {
		l.mu.RLock()
		entries := l.items[itemID]
		var bids []Bid
		if entries != nil {
			bids = entries.bids[:len(entries.bids):len(entries.bids)]
		}
		l.mu.RUnlock()
		for i := len(bids) - 1; i >= 0; i-- {
			if !yield(bids[i]) {
				return
			}
		}
	}
}
