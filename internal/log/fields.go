// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID      = "run_id"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldServiceRef = "service_ref"
	FieldChannelID  = "channel_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPhase     = "phase"
	FieldKind      = "kind"
	FieldMethod    = "method"

	// Path / URL fields
	FieldPath    = "path"
	FieldURL     = "url"
	FieldFeedURL = "feed_url"
)
