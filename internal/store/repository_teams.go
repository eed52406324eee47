package store

import (
	"context"
	"strings"
)

// CreateTeam stores a team under a fresh API key and returns the plain key
// once. Only its hash is kept.
func (s *Store) CreateTeam(ctx context.Context, name string) (Team, string, error) {
	key := NewAPIKey()
	t := Team{ID: NewID(), Name: strings.TrimSpace(name), APIKeyHash: HashAPIKey(key)}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO teams (id, name, api_key_hash) VALUES ($1, $2, $3) RETURNING created_at`,
		t.ID, t.Name, t.APIKeyHash,
	).Scan(&t.CreatedAt)
	if err != nil {
		return Team{}, "", err
	}
	return t, key, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	var t Team
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, created_at FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

func (s *Store) GetTeamByAPIKey(ctx context.Context, apiKey string) (*Team, error) {
	var t Team
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, created_at FROM teams WHERE api_key_hash = $1`, HashAPIKey(apiKey),
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// LookupTeamByAPIKey satisfies policy.TeamLookup.
func (s *Store) LookupTeamByAPIKey(ctx context.Context, apiKey string) (string, string, error) {
	t, err := s.GetTeamByAPIKey(ctx, apiKey)
	if err != nil {
		return "", "", err
	}
	return t.ID, t.Name, nil
}
