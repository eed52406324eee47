package runtime

import (
	"fmt"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/bidgateway/policy"
)

func authorize(who policy.Identity, kind IntentKind) error {
	switch kind {
	case IntentSubmitBid:
		if !who.IsTeam() {
			return fmt.Errorf("%w: %s requires a team", auction.ErrUnauthorized, kind)
		}
	default:
		if !who.IsAdmin() {
			return fmt.Errorf("%w: %s requires admin", auction.ErrUnauthorized, kind)
		}
	}
	return nil
}
