package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"
)

// RecordOutcome writes a resolved item. A second write for the same item is
// ignored, so retries are safe.
func (s *Store) RecordOutcome(ctx context.Context, res auction.ItemResolved) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO auction_outcomes (session_id, item_id, outcome, winner_team_id, price, high_bid, bid_count, reason, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id, item_id) DO NOTHING`,
		res.SessionID, res.ItemID, string(res.Outcome), textParam(res.WinnerID), res.Price,
		res.HighBid, res.BidCount, res.Reason, timestamptzParam(res.At),
	)
	return err
}

// RecordSessionStatus moves a session forward. Status never goes back, so a
// late "active" after "completed" is a no-op.
func (s *Store) RecordSessionStatus(ctx context.Context, sessionID string, status auction.SessionStatus) error {
	var err error
	switch status {
	case auction.SessionActive:
		_, err = s.Pool.Exec(ctx, `
UPDATE auction_sessions SET status = 'active', started_at = COALESCE(started_at, now())
WHERE id = $1 AND status = 'upcoming'`, sessionID)
	case auction.SessionCompleted:
		_, err = s.Pool.Exec(ctx, `
UPDATE auction_sessions SET status = 'completed', completed_at = COALESCE(completed_at, now())
WHERE id = $1`, sessionID)
	}
	return err
}

func (s *Store) RecordRegistration(ctx context.Context, sessionID string, t ledger.Team) error {
	return s.RegisterTeam(ctx, sessionID, t)
}

// ListOutcomes returns recorded results in queue order.
func (s *Store) ListOutcomes(ctx context.Context, sessionID string) ([]auction.ItemResolved, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT o.item_id, i.name, o.outcome, o.winner_team_id, o.price, o.high_bid, o.bid_count, o.reason, o.resolved_at
FROM auction_outcomes o
JOIN auction_items i ON i.session_id = o.session_id AND i.id = o.item_id
WHERE o.session_id = $1
ORDER BY i.position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auction.ItemResolved{}
	for rows.Next() {
		var (
			res     auction.ItemResolved
			outcome string
			winner  pgtype.Text
		)
		if err := rows.Scan(&res.ItemID, &res.ItemName, &outcome, &winner, &res.Price, &res.HighBid,
			&res.BidCount, &res.Reason, &res.At); err != nil {
			return nil, err
		}
		res.SessionID = sessionID
		res.Outcome = auction.Outcome(outcome)
		res.WinnerID = textVal(winner)
		out = append(out, res)
	}
	return out, rows.Err()
}
