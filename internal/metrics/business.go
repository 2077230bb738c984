// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for mapping and import runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog and feed
	servicesDiscovered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "e2epg_services_discovered",
		Help: "Receiver services found in bouquets (last scan), by kind",
	}, []string{"kind"}) // kind=iptv|sat

	feedChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "e2epg_feed_channels",
		Help: "Channels indexed from the XMLTV feed (last index)",
	})

	// Matching
	matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_matches_total",
		Help: "Services matched to a feed channel, by method",
	}, []string{"method"}) // method=exact|alias|containment|tokens|similarity

	unmatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "e2epg_unmatched_total",
		Help: "Services left without a feed channel",
	})

	mappingRefs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "e2epg_mapping_refs",
		Help: "Service refs assigned in the current mapping",
	})

	// Import
	eventsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_events_committed_total",
		Help: "Events handed to the event sink, by phase",
	}, []string{"phase"}) // phase=clone|feed|fallback

	recordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_records_dropped_total",
		Help: "Feed records or lookups dropped, by reason",
	}, []string{"reason"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_runs_total",
		Help: "Completed runs by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=succeeded|failed

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "e2epg_run_duration_seconds",
		Help:    "Run wall-clock duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"kind"})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "e2epg_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run, by kind",
	}, []string{"kind"})

	runInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "e2epg_run_in_progress",
		Help: "1 while a run is executing",
	})

	// Upstreams
	fetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2epg_fetch_attempts_total",
		Help: "Feed download attempts by outcome",
	}, []string{"outcome"}) // outcome=success|error|implausible

	fetchBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "e2epg_fetch_bytes",
		Help: "Size of the last downloaded feed",
	})

	// Operational
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "e2epg_config_validation_errors_total",
		Help: "Configuration validation failures",
	})
)

// RecordServicesDiscovered sets the catalog size per kind.
func RecordServicesDiscovered(iptv, sat int) {
	servicesDiscovered.WithLabelValues("iptv").Set(float64(iptv))
	servicesDiscovered.WithLabelValues("sat").Set(float64(sat))
}

// RecordFeedChannels sets the number of indexed feed channels.
func RecordFeedChannels(n int) {
	feedChannels.Set(float64(n))
}

// IncMatch counts one accepted match.
func IncMatch(method string) {
	matchesTotal.WithLabelValues(method).Inc()
}

// AddUnmatched counts services without a match.
func AddUnmatched(n int) {
	unmatchedTotal.Add(float64(n))
}

// RecordMappingRefs sets the number of assigned refs.
func RecordMappingRefs(n int) {
	mappingRefs.Set(float64(n))
}

// AddEventsCommitted counts events flushed to the sink.
func AddEventsCommitted(phase string, n int) {
	if n > 0 {
		eventsCommitted.WithLabelValues(phase).Add(float64(n))
	}
}

// IncRecordDropped counts a dropped record.
func IncRecordDropped(reason string) {
	recordsDropped.WithLabelValues(reason).Inc()
}

// RecordRun records a finished run.
func RecordRun(kind string, d time.Duration, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	} else {
		lastSuccess.WithLabelValues(kind).Set(float64(time.Now().Unix()))
	}
	runsTotal.WithLabelValues(kind, outcome).Inc()
	runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetRunInProgress toggles the in-progress gauge.
func SetRunInProgress(active bool) {
	if active {
		runInProgress.Set(1)
		return
	}
	runInProgress.Set(0)
}

// IncFetchAttempt counts a download attempt.
func IncFetchAttempt(outcome string) {
	fetchAttempts.WithLabelValues(outcome).Inc()
}

// RecordFetchBytes sets the size of the last download.
func RecordFetchBytes(n int64) {
	fetchBytes.Set(float64(n))
}

// IncConfigValidationError counts a rejected configuration.
func IncConfigValidationError() {
	configValidationErrors.Inc()
}
