// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span.
const (
	// Run attributes
	RunIDKey     = "run.id"
	RunKindKey   = "run.kind"
	RunStatusKey = "run.status"

	// Pipeline attributes
	PhaseKey       = "pipeline.phase"
	PhaseRefsKey   = "pipeline.refs"
	PhaseEventsKey = "pipeline.events"

	// Matching attributes
	MatchServicesKey  = "match.services"
	MatchMatchedKey   = "match.matched"
	MatchChannelsKey  = "match.channels"
	MatchUnmatchedKey = "match.unmatched"

	// Fetch attributes
	FetchURLKey      = "fetch.url"
	FetchAttemptsKey = "fetch.attempts"
	FetchBytesKey    = "fetch.bytes"

	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPRouteKey      = "http.route"
	HTTPStatusCodeKey = "http.status_code"

	ErrorTypeKey = "error.type"
)

// RunAttributes describes a job run.
func RunAttributes(id, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, id),
		attribute.String(RunKindKey, kind),
	}
}

// PhaseAttributes describes one pipeline phase outcome.
func PhaseAttributes(phase string, refs, events int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PhaseKey, phase),
		attribute.Int(PhaseRefsKey, refs),
		attribute.Int(PhaseEventsKey, events),
	}
}

// MatchAttributes describes a resolution pass.
func MatchAttributes(services, matched, channels, unmatched int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(MatchServicesKey, services),
		attribute.Int(MatchMatchedKey, matched),
		attribute.Int(MatchChannelsKey, channels),
		attribute.Int(MatchUnmatchedKey, unmatched),
	}
}

// FetchAttributes describes a feed download. url must already be redacted.
func FetchAttributes(url string, attempts int, bytes int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int(FetchAttemptsKey, attempts)}
	if url != "" {
		attrs = append(attrs, attribute.String(FetchURLKey, url))
	}
	if bytes > 0 {
		attrs = append(attrs, attribute.Int64(FetchBytesKey, bytes))
	}
	return attrs
}

// HTTPAttributes describes a control API request.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ErrorAttributes classifies a failure without leaking its message.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ErrorTypeKey, errorType)}
}
