// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline merges programme events from the receiver's own EPG, the
// XMLTV feed and a static fallback table into per-service event batches.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/e2epg/internal/catalog"
	"github.com/ManuGH/e2epg/internal/epg"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/match"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/telemetry"
)

// EventSink receives events. Commit persists everything added since the last
// commit and clears the buffer; committing twice is harmless.
type EventSink interface {
	AddEvent(ref string, ev epg.Event)
	Commit(ctx context.Context) error
}

// EventSource returns the events a service has between start and end.
type EventSource interface {
	Lookup(ctx context.Context, ref string, start, end time.Time) ([]epg.Event, error)
}

// Phase names.
const (
	PhaseClone    = "clone"
	PhaseFeed     = "feed"
	PhaseFallback = "fallback"
)

// ErrNoMapping is reported when the feed phase has nothing to import.
var ErrNoMapping = errors.New("no mapping")

// Defaults.
const (
	DefaultBatchSize = 5000
	DefaultWindow    = 72 * time.Hour
)

// Deps are the collaborators of a Pipeline. Source may be nil, which disables
// the clone and fallback phases.
type Deps struct {
	Catalog  catalog.Lister
	Resolver *match.Resolver
	Mappings *mapping.Store
	FeedPath string
	Source   EventSource
	Sink     EventSink
	Clock    func() time.Time
	Logger   *zerolog.Logger
}

// Options tune a run.
type Options struct {
	BatchSize      int
	Window         time.Duration
	Limits         epg.Limits
	RefreshMapping bool
	Fallback       FallbackTable
	// Location applies to feed timestamps without an offset.
	Location *time.Location
	Index    epg.IndexOptions
}

// PhaseStats is the outcome of one phase.
type PhaseStats struct {
	Refs   int    `json:"refs"`
	Events int    `json:"events"`
	Error  string `json:"error,omitempty"`
}

// Stats summarises a run.
type Stats struct {
	Services     int                   `json:"services"`
	Phases       map[string]PhaseStats `json:"phases"`
	MappingRefs  int                   `json:"mappingRefs"`
	Dropped      map[string]int        `json:"dropped,omitempty"`
	Flushes      int                   `json:"flushes"`
	CommitErrors int                   `json:"commitErrors"`
	Report       *match.Report         `json:"report,omitempty"`
}

// Events is the total number of events handed to the sink.
func (s Stats) Events() int {
	n := 0
	for _, p := range s.Phases {
		n += p.Events
	}
	return n
}

// Pipeline runs the three phases in order. A Pipeline may be run repeatedly
// but not concurrently.
type Pipeline struct {
	deps Deps
	opts Options
}

// New applies defaults to opts.
func New(deps Deps, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Limits == (epg.Limits{}) {
		opts.Limits = epg.DefaultLimits
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Fallback == nil {
		opts.Fallback = FallbackTable{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Pipeline{deps: deps, opts: opts}
}

// run holds state owned by a single Run call.
type run struct {
	*Pipeline
	logger  zerolog.Logger
	claims  map[string]struct{}
	batch   *batcher
	stats   *Stats
	now     time.Time
	catalog []catalog.Service
}

func (r *run) claim(ref string) {
	r.claims[ref] = struct{}{}
}

func (r *run) claimed(ref string) bool {
	_, ok := r.claims[ref]
	return ok
}

func (r *run) drop(reason string) {
	r.stats.Dropped[reason]++
	metrics.IncRecordDropped(reason)
}

// window is the look-ahead range for live lookups.
func (r *run) window() (time.Time, time.Time) {
	return r.now, r.now.Add(r.opts.Window)
}

// Run executes clone, feed and fallback. Phase failures are logged and stored
// in Stats; the returned error is non-nil only when ctx ends the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	logger := xglog.WithComponentFromContext(ctx, "pipeline")
	if p.deps.Logger != nil {
		logger = *p.deps.Logger
	}
	stats := Stats{Phases: make(map[string]PhaseStats, 3), Dropped: map[string]int{}}
	r := &run{
		Pipeline: p,
		logger:   logger,
		claims:   make(map[string]struct{}),
		stats:    &stats,
		now:      p.deps.Clock(),
	}
	r.batch = newBatcher(p.deps.Sink, p.opts.BatchSize, r.onFlush)

	ctx, span := telemetry.Tracer("e2epg/pipeline").Start(ctx, "pipeline.run")
	var runErr error
	defer func() { telemetry.EndSpan(span, runErr) }()

	services, err := p.deps.Catalog.List(ctx)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "pipeline.catalog_unavailable").Msg("service catalog unavailable")
	}
	r.catalog = services
	stats.Services = len(services)

	phases := []struct {
		name string
		fn   func(context.Context, *PhaseStats) error
	}{
		{PhaseClone, r.clonePhase},
		{PhaseFeed, r.feedPhase},
		{PhaseFallback, r.fallbackPhase},
	}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			runErr = err
			return stats, err
		}
		if err := r.runPhase(ctx, ph.name, ph.fn); err != nil {
			runErr = err
			return stats, err
		}
	}

	logger.Info().
		Str(xglog.FieldEvent, "pipeline.done").
		Int("services", stats.Services).
		Int("events", stats.Events()).
		Int("flushes", stats.Flushes).
		Int("commit_errors", stats.CommitErrors).
		Msg("import pipeline finished")
	return stats, nil
}

// runPhase executes fn and flushes. Only context errors propagate.
func (r *run) runPhase(ctx context.Context, name string, fn func(context.Context, *PhaseStats) error) error {
	ctx, span := telemetry.Tracer("e2epg/pipeline").Start(ctx, "pipeline."+name)
	r.batch.phase = name

	var ps PhaseStats
	err := fn(ctx, &ps)
	if flushErr := r.batch.flush(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		ps.Error = err.Error()
	}
	r.stats.Phases[name] = ps
	telemetry.EndSpan(span, err, telemetry.PhaseAttributes(name, ps.Refs, ps.Events)...)

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str(xglog.FieldEvent, "pipeline.phase_done").
		Str(xglog.FieldPhase, name).
		Int("refs", ps.Refs).
		Int("events", ps.Events).
		Msg("phase finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func (r *run) onFlush(events int, err error) {
	r.stats.Flushes++
	if err != nil {
		r.stats.CommitErrors++
		r.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "pipeline.commit_failed").
			Str(xglog.FieldPhase, r.batch.phase).
			Int("events", events).
			Msg("event sink commit failed")
	}
}
