package httptransport

import "expvar"

var (
	metricIntentSubmitTotal  = expvar.NewInt("http_intent_submit_total")
	metricIntentSubmitErrors = expvar.NewInt("http_intent_submit_errors_total")

	metricSessionCreateTotal  = expvar.NewInt("session_create_total")
	metricSessionCreateErrors = expvar.NewInt("session_create_errors_total")

	metricResultsQueryTotal  = expvar.NewInt("results_query_total")
	metricResultsQueryErrors = expvar.NewInt("results_query_errors_total")
)
