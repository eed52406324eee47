package auction

import "errors"

var (
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrStaleBid           = errors.New("stale_bid")
	ErrSelfOutbid         = errors.New("self_outbid")
	ErrInsufficientBudget = errors.New("insufficient_budget")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBelowIncrement     = errors.New("below_min_increment")
	ErrRosterFull         = errors.New("roster_full")
	ErrEmptyQueue         = errors.New("empty_queue")
	ErrTeamNotRegistered  = errors.New("team_not_registered")
	ErrRegistrationClosed = errors.New("registration_closed")
	ErrBelowMinBudget     = errors.New("below_min_budget")
	ErrStaleExpiry        = errors.New("stale_expiry")
	ErrInvalidSetup       = errors.New("invalid_setup")
)

// reasonOrder lists the taxonomy codes before the details they may wrap.
var reasonOrder = []error{
	ErrInvalidTransition,
	ErrUnauthorized,
	ErrStaleBid,
	ErrBelowIncrement,
	ErrInsufficientBudget,
	ErrSelfOutbid,
	ErrRosterFull,
	ErrRegistrationClosed,
	ErrBelowMinBudget,
	ErrTeamNotRegistered,
	ErrEmptyQueue,
	ErrStaleExpiry,
	ErrInvalidSetup,
}

// Reason returns the wire reason code for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range reasonOrder {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}

// Rejection reports whether err is an expected, user-facing rejection rather
// than an internal failure.
func Rejection(err error) bool {
	return err != nil && Reason(err) != "internal_error"
}
