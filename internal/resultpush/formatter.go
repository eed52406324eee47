package resultpush

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	colorSold     = 0x3BA55D
	colorOpen     = 0x5865F2
	colorPaused   = 0xFEE75C
	colorUnsold   = 0x99AAB5
	colorComplete = 0xED4245

	shortIDLimit  = 10
	defaultFooter = "cricket-auction results"
)

// FormatMessage renders the events that deserve their own message: item
// results and the end of a session. Everything else only feeds the live
// panel.
func FormatMessage(ev NormalizedEvent) (FormattedMessage, bool) {
	session := sessionLabel(ev)
	base := FormattedMessage{
		Timestamp: eventTimestamp(ev.ServerTS),
		Footer:    defaultFooter + " | session:" + shortID(fallback(ev.SessionID, "-"), shortIDLimit),
	}
	item := fallback(ev.ItemName, fallback(ev.ItemID, "item"))

	switch ev.EventType {
	case "item_resolved":
		bids := amountText(int64Ptr(ev.Raw, "bid_count"))
		if ev.Outcome == "sold" {
			base.Title = fmt.Sprintf("SOLD · %s · %s", item, session)
			base.Content = fmt.Sprintf("%s sold to %s for %s", item, fallback(ev.Winner, "-"), amountText(ev.Price))
			base.Description = base.Content
			base.Color = colorSold
			base.Fields = []MessageField{
				{Name: "Player", Value: item, Inline: true},
				{Name: "Team", Value: fallback(ev.Winner, "-"), Inline: true},
				{Name: "Price", Value: amountText(ev.Price), Inline: true},
				{Name: "Bids", Value: bids, Inline: true},
			}
		} else {
			base.Title = fmt.Sprintf("UNSOLD · %s · %s", item, session)
			base.Content = fmt.Sprintf("%s went unsold", item)
			base.Description = base.Content
			base.Color = colorUnsold
			base.Fields = []MessageField{
				{Name: "Player", Value: item, Inline: true},
				{Name: "Bids", Value: bids, Inline: true},
			}
			if high := int64Ptr(ev.Raw, "high_bid"); high != nil && *high > 0 {
				base.Fields = append(base.Fields, MessageField{Name: "High Bid", Value: amountText(high), Inline: true})
			}
		}
		if ev.Reason != "" && ev.Reason != "clock_expired" {
			base.Fields = append(base.Fields, MessageField{Name: "Reason", Value: ev.Reason, Inline: false})
		}
	case "session_complete":
		base.Title = fmt.Sprintf("Auction Complete · %s", session)
		base.Content = fmt.Sprintf("%s finished: %s sold, %s unsold", session, countText(ev.Sold), countText(ev.Unsold))
		base.Description = base.Content
		base.Color = colorComplete
		base.Fields = []MessageField{
			{Name: "Sold", Value: countText(ev.Sold), Inline: true},
			{Name: "Unsold", Value: countText(ev.Unsold), Inline: true},
			{Name: "Reason", Value: fallback(ev.Reason, "-"), Inline: true},
		}
	default:
		return FormattedMessage{}, false
	}
	return base, true
}

func sessionLabel(ev NormalizedEvent) string {
	if strings.TrimSpace(ev.SessionName) != "" {
		return ev.SessionName
	}
	return "Session " + shortID(fallback(ev.SessionID, "-"), 6)
}

func trimText(v string, max int) string {
	if max <= 0 || len(v) <= max {
		return v
	}
	if max <= 3 {
		return v[:max]
	}
	return v[:max-3] + "..."
}

func amountText(amount *int64) string {
	if amount == nil {
		return "-"
	}
	return strconv.FormatInt(*amount, 10)
}

func countText(n *int) string {
	if n == nil {
		return "0"
	}
	return strconv.Itoa(*n)
}

func shortID(v string, max int) string {
	if max <= 0 || len(v) <= max {
		return v
	}
	return v[:max]
}

func eventTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
