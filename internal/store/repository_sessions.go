package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"
)

var ErrDuplicate = errors.New("duplicate")

// CreateSession stores a new upcoming session and its item queue in queue
// order.
func (s *Store) CreateSession(ctx context.Context, name string, rules auction.Rules, items []auction.Item) (Session, error) {
	sess := Session{ID: NewID(), Name: name, Status: auction.SessionUpcoming, Rules: rules}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
INSERT INTO auction_sessions (id, name, item_duration_ms, bid_increment, min_register_budget, max_roster, min_roster, reserve_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`,
		sess.ID, sess.Name, rules.ItemDuration.Milliseconds(), rules.BidIncrement,
		rules.MinRegisterBudget, rules.MaxRoster, rules.MinRoster, rules.ReservePrice,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	for i, it := range items {
		if err := insertItem(ctx, tx, sess.ID, i, it); err != nil {
			return Session{}, err
		}
	}
	return sess, tx.Commit(ctx)
}

// AddItem appends an item to the end of an upcoming session's queue.
func (s *Store) AddItem(ctx context.Context, sessionID string, it auction.Item) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM auction_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status); err != nil {
		return mapNotFound(err)
	}
	if status != string(auction.SessionUpcoming) {
		return fmt.Errorf("add item to %s session: %w", status, auction.ErrInvalidTransition)
	}
	var next int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM auction_items WHERE session_id = $1`, sessionID).Scan(&next); err != nil {
		return err
	}
	if err := insertItem(ctx, tx, sessionID, next, it); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertItem(ctx context.Context, tx pgx.Tx, sessionID string, position int, it auction.Item) error {
	if it.ID == "" {
		it.ID = NewID()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO auction_items (session_id, id, position, name, role, base_price) VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, it.ID, position, it.Name, it.Role, it.BasePrice,
	)
	return mapDuplicate(err)
}

// RegisterTeam enters a team into an upcoming session. Registering the same
// team twice is a no-op.
func (s *Store) RegisterTeam(ctx context.Context, sessionID string, t ledger.Team) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM auction_sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&status); err != nil {
		return mapNotFound(err)
	}
	if status != string(auction.SessionUpcoming) {
		return fmt.Errorf("register team in %s session: %w", status, auction.ErrRegistrationClosed)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO session_teams (session_id, team_id, name, total_purse, max_roster)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, team_id) DO NOTHING`,
		sessionID, t.ID, t.Name, t.TotalPurse, t.MaxRoster,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess       Session
		status     string
		durationMS int64
		started    pgtype.Timestamptz
		completed  pgtype.Timestamptz
	)
	err := s.Pool.QueryRow(ctx, `
SELECT id, name, status, item_duration_ms, bid_increment, min_register_budget, max_roster, min_roster,
       reserve_price, created_at, started_at, completed_at
FROM auction_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Name, &status, &durationMS, &sess.Rules.BidIncrement, &sess.Rules.MinRegisterBudget,
		&sess.Rules.MaxRoster, &sess.Rules.MinRoster, &sess.Rules.ReservePrice, &sess.CreatedAt, &started, &completed)
	if err != nil {
		return nil, mapNotFound(err)
	}
	sess.Status = auction.SessionStatus(status)
	sess.Rules.ItemDuration = time.Duration(durationMS) * time.Millisecond
	sess.StartedAt = timePtrVal(started)
	sess.CompletedAt = timePtrVal(completed)
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
SELECT id, name, status, created_at, started_at, completed_at
FROM auction_sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Session{}
	for rows.Next() {
		var (
			sess      Session
			status    string
			started   pgtype.Timestamptz
			completed pgtype.Timestamptz
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &status, &sess.CreatedAt, &started, &completed); err != nil {
			return nil, err
		}
		sess.Status = auction.SessionStatus(status)
		sess.StartedAt = timePtrVal(started)
		sess.CompletedAt = timePtrVal(completed)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// LoadSessionSetup rebuilds everything the engine needs to (re)open a
// session: rules, the item queue with recorded outcomes, and team budgets
// net of what they already spent.
func (s *Store) LoadSessionSetup(ctx context.Context, sessionID string) (auction.Setup, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return auction.Setup{}, err
	}
	if sess.Status == auction.SessionCompleted {
		return auction.Setup{}, ErrSessionCompleted
	}
	setup := auction.Setup{SessionID: sess.ID, Name: sess.Name, Status: sess.Status, Rules: sess.Rules}

	rows, err := s.Pool.Query(ctx, `
SELECT i.id, i.name, i.role, i.base_price, o.outcome, o.winner_team_id, o.price
FROM auction_items i
LEFT JOIN auction_outcomes o ON o.session_id = i.session_id AND o.item_id = i.id
WHERE i.session_id = $1
ORDER BY i.position`, sessionID)
	if err != nil {
		return auction.Setup{}, err
	}
	spent := map[string]int64{}
	acquired := map[string]int{}
	for rows.Next() {
		var (
			it      auction.Item
			outcome pgtype.Text
			winner  pgtype.Text
			price   pgtype.Int8
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Role, &it.BasePrice, &outcome, &winner, &price); err != nil {
			rows.Close()
			return auction.Setup{}, err
		}
		it.Status = auction.ItemPending
		switch auction.Outcome(textVal(outcome)) {
		case auction.OutcomeSold:
			it.Status = auction.ItemSold
			it.WinnerID = textVal(winner)
			it.FinalPrice = price.Int64
			spent[it.WinnerID] += it.FinalPrice
			acquired[it.WinnerID]++
		case auction.OutcomeUnsold:
			it.Status = auction.ItemUnsold
		}
		setup.Items = append(setup.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return auction.Setup{}, err
	}

	teamRows, err := s.Pool.Query(ctx, `
SELECT team_id, name, total_purse, max_roster FROM session_teams
WHERE session_id = $1 ORDER BY registered_at, team_id`, sessionID)
	if err != nil {
		return auction.Setup{}, err
	}
	defer teamRows.Close()
	for teamRows.Next() {
		var t ledger.Team
		if err := teamRows.Scan(&t.ID, &t.Name, &t.TotalPurse, &t.MaxRoster); err != nil {
			return auction.Setup{}, err
		}
		t.Remaining = t.TotalPurse - spent[t.ID]
		t.Acquired = acquired[t.ID]
		setup.Teams = append(setup.Teams, t)
	}
	return setup, teamRows.Err()
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
