package runtime

import (
	"context"
	"errors"
	"net/http"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"
)

var (
	ErrSessionNotFound  = errors.New("session_not_found")
	ErrSessionClosed    = errors.New("session_closed")
	ErrInvalidRequestID = errors.New("invalid_request_id")
	ErrInvalidIntent    = errors.New("invalid_intent")
)

func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// MapIntentError maps an intent error to an HTTP status and wire code.
func MapIntentError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, ErrInvalidRequestID):
		return http.StatusBadRequest, "invalid_request_id"
	case errors.Is(err, ErrInvalidIntent):
		return http.StatusBadRequest, "invalid_intent"
	case errors.Is(err, auction.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, auction.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, auction.ErrStaleBid),
		errors.Is(err, auction.ErrSelfOutbid),
		errors.Is(err, auction.ErrInsufficientBudget),
		errors.Is(err, auction.ErrBelowIncrement),
		errors.Is(err, auction.ErrRosterFull),
		errors.Is(err, auction.ErrBelowMinBudget):
		return http.StatusBadRequest, auction.Reason(err)
	case errors.Is(err, auction.ErrRegistrationClosed):
		return http.StatusConflict, "registration_closed"
	case errors.Is(err, ledger.ErrTeamExists):
		return http.StatusConflict, "team_already_registered"
	case errors.Is(err, ledger.ErrInvalidTeam):
		return http.StatusBadRequest, "invalid_team"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ReasonCode is the wire reason for a rejected intent.
func ReasonCode(err error) string {
	_, code := MapIntentError(err)
	return code
}
