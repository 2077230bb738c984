// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ManuGH/e2epg/internal/catalog"
	"github.com/ManuGH/e2epg/internal/epg"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/telemetry"
)

// Drop reasons recorded in Stats.Dropped.
const (
	dropBadTimestamp = "bad_timestamp"
	dropEmptyRange   = "empty_range"
	dropMalformed    = "malformed"
	dropLiveError    = "live_lookup_error"
	dropLiveInvalid  = "live_invalid_event"
)

// liveEvents memoizes live lookups per source ref for the duration of a phase.
type liveEvents struct {
	r     *run
	cache map[string][]epg.Event
}

func (r *run) newLiveEvents() *liveEvents {
	return &liveEvents{r: r, cache: make(map[string][]epg.Event)}
}

func (l *liveEvents) get(ctx context.Context, ref string) []epg.Event {
	if evs, ok := l.cache[ref]; ok {
		return evs
	}
	start, end := l.r.window()
	raw, err := l.r.deps.Source.Lookup(ctx, ref, start, end)
	if err != nil {
		l.r.drop(dropLiveError)
		l.r.logger.Debug().Err(err).
			Str(xglog.FieldEvent, "pipeline.live_lookup_failed").
			Str(xglog.FieldServiceRef, ref).
			Msg("live lookup failed")
		raw = nil
	}

	out := make([]epg.Event, 0, len(raw))
	for _, ev := range raw {
		if !ev.Valid() {
			l.r.drop(dropLiveInvalid)
			continue
		}
		ev.Title = epg.Truncate(ev.Title, l.r.opts.Limits.TitleRunes)
		if ev.Title == "" {
			ev.Title = epg.DefaultTitle
		}
		ev.Description = epg.Truncate(ev.Description, l.r.opts.Limits.DescriptionRunes)
		out = append(out, ev)
	}
	l.cache[ref] = out
	return out
}

// copyTo enqueues events for ref and claims it when at least one was added.
func (r *run) copyTo(ctx context.Context, ref string, events []epg.Event, ps *PhaseStats) error {
	for _, ev := range events {
		if err := r.batch.add(ctx, ref, ev); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		r.claim(ref)
		ps.Refs++
		ps.Events += len(events)
	}
	return nil
}

// clonePhase copies the EPG of tuner services to stream services carrying
// the same fingerprint.
func (r *run) clonePhase(ctx context.Context, ps *PhaseStats) error {
	if r.deps.Source == nil || r.deps.Resolver == nil {
		return nil
	}
	n := r.deps.Resolver.Normalizer()

	satByFP := make(map[string]string)
	for _, s := range r.catalog {
		if s.Kind != catalog.KindSAT {
			continue
		}
		fp := n.Fingerprint(s.Name)
		if utf8.RuneCountInString(fp) < 2 {
			continue
		}
		if _, seen := satByFP[fp]; !seen {
			satByFP[fp] = s.Ref
		}
	}
	if len(satByFP) == 0 {
		return nil
	}

	live := r.newLiveEvents()
	for _, s := range r.catalog {
		if s.Kind != catalog.KindIPTV || r.claimed(s.Ref) {
			continue
		}
		satRef, ok := satByFP[n.Fingerprint(s.Name)]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.copyTo(ctx, s.Ref, live.get(ctx, satRef), ps); err != nil {
			return err
		}
	}
	return nil
}

// feedPhase imports programmes of mapped channels from the XMLTV feed.
func (r *run) feedPhase(ctx context.Context, ps *PhaseStats) error {
	m, err := r.feedMapping(ctx)
	if err != nil {
		return err
	}
	r.stats.MappingRefs = m.RefCount()
	metrics.RecordMappingRefs(r.stats.MappingRefs)
	if len(m) == 0 {
		return ErrNoMapping
	}

	rc, err := epg.Open(r.deps.FeedPath)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer func() { _ = rc.Close() }()

	wanted := func(id string) bool {
		_, ok := m[id]
		return ok
	}
	st, err := epg.StreamProgrammes(ctx, rc, wanted, func(p *epg.Programme) error {
		ev, convErr := p.ToEvent(r.opts.Location, r.opts.Limits)
		if convErr != nil {
			if errors.Is(convErr, epg.ErrEmptyRange) {
				r.drop(dropEmptyRange)
			} else {
				r.drop(dropBadTimestamp)
			}
			return nil
		}
		for _, ref := range m[p.Channel] {
			if !r.claimed(ref) {
				r.claim(ref)
				ps.Refs++
			}
			if err := r.batch.add(ctx, ref, ev); err != nil {
				return err
			}
			ps.Events++
		}
		return nil
	})
	for i := 0; i < st.Malformed; i++ {
		r.drop(dropMalformed)
	}
	if err != nil {
		return fmt.Errorf("read programmes: %w", err)
	}
	return nil
}

// feedMapping returns a fresh or stored mapping without refs claimed earlier.
func (r *run) feedMapping(ctx context.Context) (mapping.Mapping, error) {
	if !r.opts.RefreshMapping {
		if r.deps.Mappings == nil {
			return mapping.Mapping{}, nil
		}
		m, err := r.deps.Mappings.Load()
		if err != nil {
			return nil, err
		}
		return m.Without(r.claimed), nil
	}

	if r.deps.Resolver == nil {
		return nil, errors.New("mapping refresh requires a resolver")
	}
	ctx, span := telemetry.Tracer("e2epg/pipeline").Start(ctx, "pipeline.resolve")
	idx := epg.LoadIndex(ctx, r.deps.FeedPath, r.deps.Resolver.Normalizer(), r.opts.Index)
	if idx.Err() != nil {
		r.logger.Warn().Err(idx.Err()).
			Str(xglog.FieldEvent, "pipeline.index_incomplete").
			Int("keys", idx.Len()).
			Msg("feed channel index incomplete")
	}
	metrics.RecordFeedChannels(len(idx.Channels()))

	m, rep := r.deps.Resolver.ResolveAll(ctx, r.catalog, idx, r.claimed)
	r.stats.Report = &rep
	telemetry.EndSpan(span, nil, telemetry.MatchAttributes(rep.Services, rep.Matched, rep.Channels, len(rep.Unmatched))...)

	if r.deps.Mappings != nil && len(m) > 0 {
		if err := r.deps.Mappings.Save(m); err != nil {
			r.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "pipeline.mapping_save_failed").
				Str(xglog.FieldPath, r.deps.Mappings.Path()).
				Msg("could not persist refreshed mapping")
		}
	}
	return m, nil
}

// fallbackPhase copies live EPG for unclaimed services listed in the table.
func (r *run) fallbackPhase(ctx context.Context, ps *PhaseStats) error {
	if r.deps.Source == nil || len(r.opts.Fallback) == 0 {
		return nil
	}
	live := r.newLiveEvents()
	for _, s := range r.catalog {
		if r.claimed(s.Ref) {
			continue
		}
		liveRef, ok := r.opts.Fallback.Lookup(s.Name)
		if !ok || liveRef == s.Ref {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.copyTo(ctx, s.Ref, live.get(ctx, liveRef), ps); err != nil {
			return err
		}
		r.logger.Debug().
			Str(xglog.FieldEvent, "pipeline.fallback").
			Str(xglog.FieldServiceRef, s.Ref).
			Str("live_ref", liveRef).
			Msg("fallback lookup")
	}
	return nil
}
