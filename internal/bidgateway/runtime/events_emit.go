package runtime

import (
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/auction/viewmodel"
)

func (rt *sessionRuntime) emitBidAccepted(acc auction.BidAccepted) {
	rt.buffer.Append("bid_accepted", rt.id, map[string]any{
		"item_id":           acc.ItemID,
		"price":             acc.Amount,
		"leader":            acc.TeamID,
		"seq":               acc.Seq,
		"time_remaining_ms": acc.TimeRemaining.Milliseconds(),
		"at":                acc.At.UnixMilli(),
	})
}

func (rt *sessionRuntime) emitItemAdvanced(adv auction.ItemAdvanced) {
	rt.buffer.Append("item_advanced", rt.id, map[string]any{
		"item_id":           adv.Item.ID,
		"item":              adv.Item,
		"position":          adv.Position,
		"items_remaining":   adv.ItemsRemaining,
		"time_remaining_ms": adv.Duration.Milliseconds(),
	})
}

func (rt *sessionRuntime) emitItemResolved(res auction.ItemResolved) {
	rt.buffer.Append("item_resolved", rt.id, res)
}

func (rt *sessionRuntime) emitPaused(event string, left time.Duration) {
	data := map[string]any{"time_remaining_ms": left.Milliseconds()}
	if snap := rt.engine.Snapshot(); snap.ActiveItem != nil {
		data["item_id"] = snap.ActiveItem.ID
	}
	rt.buffer.Append(event, rt.id, data)
}

func (rt *sessionRuntime) emitClockTick() {
	if rt.engine.Phase() != auction.PhaseItemOpen || rt.engine.Paused() {
		return
	}
	snap := rt.engine.Snapshot()
	if snap.ActiveItem == nil {
		return
	}
	rt.buffer.Append("clock_tick", rt.id, map[string]any{
		"item_id":           snap.ActiveItem.ID,
		"time_remaining_ms": snap.TimeRemainingMS,
	})
}

// emitPublicSnapshot appends the spectator view after every state change.
func (rt *sessionRuntime) emitPublicSnapshot() {
	rt.buffer.Append("state_snapshot", rt.id, viewmodel.BuildPublicState(rt.engine.Snapshot()))
}
