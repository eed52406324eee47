package policy

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrInvalidAPIKey = errors.New("invalid_api_key")

type Role string

const (
	RoleTeam      Role = "team"
	RoleAdmin     Role = "admin"
	RoleSpectator Role = "spectator"
)

// Identity is established once per connection and passed with every intent.
type Identity struct {
	TeamID string `json:"team_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

func Spectator() Identity {
	return Identity{Role: RoleSpectator}
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

func (id Identity) IsTeam() bool { return id.Role == RoleTeam && id.TeamID != "" }

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// TeamLookup resolves a team API key.
type TeamLookup interface {
	LookupTeamByAPIKey(ctx context.Context, apiKey string) (teamID, name string, err error)
}

// KeyAuthenticator accepts the admin key or any team API key. An empty token
// is a spectator when AllowAnonymous is set.
type KeyAuthenticator struct {
	AdminKey       string
	Teams          TeamLookup
	AllowAnonymous bool
}

func (a KeyAuthenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		if a.AllowAnonymous {
			return Spectator(), nil
		}
		return Identity{}, ErrInvalidAPIKey
	}
	if a.AdminKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.AdminKey)) == 1 {
		return Identity{Role: RoleAdmin, Name: "admin"}, nil
	}
	if a.Teams == nil {
		return Identity{}, ErrInvalidAPIKey
	}
	teamID, name, err := a.Teams.LookupTeamByAPIKey(ctx, token)
	if err != nil || teamID == "" {
		return Identity{}, ErrInvalidAPIKey
	}
	return Identity{TeamID: teamID, Name: name, Role: RoleTeam}, nil
}

// TokenFromRequest reads a bearer token, the X-API-Key header or the token
// query parameter, in that order. Browsers cannot set headers on websocket
// upgrades, hence the query fallback.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(v)
		}
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
