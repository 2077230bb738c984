// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Live source: receiver lookups and the breaker guarding them.
var (
	liveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_live_requests_total",
		Help: "Live EPG lookups against the receiver, by status",
	}, []string{"status"}) // ok|error|circuit_open

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "e2epg_live_breaker_state",
		Help: "Live source breaker state, one-hot per breaker",
	}, []string{"breaker", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_live_breaker_trips_total",
		Help: "Live source breaker openings, by cause",
	}, []string{"breaker", "reason"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// IncLiveRequest counts a live EPG request.
func IncLiveRequest(status string) {
	liveRequests.WithLabelValues(status).Inc()
}

// SetCircuitBreakerState marks state as the active one for breaker.
func SetCircuitBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(breaker, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition of breaker to open.
func RecordCircuitBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}
