package auction

import "fmt"

// Sequencer is the ordered queue of items for one session.
type Sequencer struct {
	items  []Item
	index  map[string]int
	active int
	cursor int
}

func NewSequencer(items []Item) (*Sequencer, error) {
	s := &Sequencer{
		items:  make([]Item, 0, len(items)),
		index:  make(map[string]int, len(items)),
		active: -1,
		cursor: -1,
	}
	for _, it := range items {
		if it.ID == "" || it.BasePrice < 0 {
			return nil, fmt.Errorf("%w: item %q", ErrInvalidSetup, it.ID)
		}
		if _, dup := s.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item %q", ErrInvalidSetup, it.ID)
		}
		switch it.Status {
		case "", ItemActive:
			it.Status = ItemPending
		case ItemPending, ItemSold, ItemUnsold:
		default:
			return nil, fmt.Errorf("%w: item %q status %q", ErrInvalidSetup, it.ID, it.Status)
		}
		s.index[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return s, nil
}

// Next activates the next pending item in queue order.
func (s *Sequencer) Next() (Item, bool) {
	if s.active >= 0 {
		return Item{}, false
	}
	for i := s.cursor + 1; i < len(s.items); i++ {
		if s.items[i].Status != ItemPending {
			continue
		}
		s.items[i].Status = ItemActive
		s.active = i
		s.cursor = i
		return s.items[i], true
	}
	s.cursor = len(s.items)
	return Item{}, false
}

func (s *Sequencer) Active() (Item, bool) {
	if s.active < 0 {
		return Item{}, false
	}
	return s.items[s.active], true
}

// Resolve closes the active item. Resolved items are immutable.
func (s *Sequencer) Resolve(outcome Outcome, winnerID string, price int64) (Item, bool) {
	if s.active < 0 {
		return Item{}, false
	}
	it := &s.items[s.active]
	if outcome == OutcomeSold {
		it.Status = ItemSold
		it.WinnerID = winnerID
		it.FinalPrice = price
	} else {
		it.Status = ItemUnsold
	}
	s.active = -1
	return *it, true
}

// HasPending reports whether Next would find an item.
func (s *Sequencer) HasPending() bool {
	return s.Remaining() > 0
}

// Remaining counts pending items after the cursor.
func (s *Sequencer) Remaining() int {
	n := 0
	for i := s.cursor + 1; i < len(s.items); i++ {
		if s.items[i].Status == ItemPending {
			n++
		}
	}
	return n
}

// Position is the 1-based queue position of the active item.
func (s *Sequencer) Position() int {
	if s.active < 0 {
		return 0
	}
	return s.active + 1
}

func (s *Sequencer) Item(id string) (Item, bool) {
	i, ok := s.index[id]
	if !ok {
		return Item{}, false
	}
	return s.items[i], true
}

func (s *Sequencer) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Sequencer) Len() int {
	return len(s.items)
}

// Counts tallies items by status.
func (s *Sequencer) Counts() (sold, unsold, pending int) {
	for _, it := range s.items {
		switch it.Status {
		case ItemSold:
			sold++
		case ItemUnsold:
			unsold++
		case ItemPending:
			pending++
		}
	}
	return sold, unsold, pending
}
