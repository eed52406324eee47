package spectatorgateway

import "expvar"

var (
	metricSpectatorSSEConnectionsTotal  = expvar.NewInt("spectator_sse_connections_total")
	metricSpectatorSSEConnectionsActive = expvar.NewInt("spectator_sse_connections_active")
	metricSpectatorStateCacheHits       = expvar.NewInt("spectator_state_cache_hits_total")
)
