package runtime

import "expvar"

var (
	metricIntentTotal     = expvar.NewInt("intent_submit_total")
	metricIntentRejected  = expvar.NewInt("intent_rejected_total")
	metricIntentDuplicate = expvar.NewInt("intent_duplicate_total")
	metricBidAccepted     = expvar.NewInt("bid_accepted_total")
	metricItemResolved    = expvar.NewInt("item_resolved_total")

	metricSessionsOpen = expvar.NewInt("auction_sessions_open")

	metricSinkErrors       = expvar.NewInt("result_sink_errors_total")
	metricSinkDropped      = expvar.NewInt("result_sink_dropped_total")
	metricSinkBackpressure = expvar.NewInt("result_sink_backpressure_total")
)
