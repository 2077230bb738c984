// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/e2epg/internal/epg"
	"github.com/ManuGH/e2epg/internal/fetch"
	"github.com/ManuGH/e2epg/internal/jobs"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/match"
	"github.com/ManuGH/e2epg/internal/store"
)

const (
	defaultEventsSpan = 24 * time.Hour
	maxEventsSpan     = 14 * 24 * time.Hour
)

// Status is the body of GET /api/v1/status.
type Status struct {
	Version    string               `json:"version"`
	Feed       string               `json:"feed,omitempty"`
	Active     *jobs.Run            `json:"active,omitempty"`
	LastMap    *jobs.Run            `json:"lastMapRun,omitempty"`
	LastImport *jobs.Run            `json:"lastImportRun,omitempty"`
	State      *jobs.PersistedState `json:"state,omitempty"`
	Mapping    *MappingSummary      `json:"mapping,omitempty"`
	Store      *store.Stats         `json:"store,omitempty"`
	LiveSource string               `json:"liveSource,omitempty"`
	Errors     []string             `json:"errors,omitempty"`
}

// MappingSummary counts the stored mapping.
type MappingSummary struct {
	Path     string `json:"path"`
	Channels int    `json:"channels"`
	Refs     int    `json:"refs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	// Concurrent pollers share one snapshot.
	v, _, _ := s.group.Do("status", func() (any, error) {
		return s.status(context.WithoutCancel(r.Context())), nil
	})
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) status(ctx context.Context) Status {
	cfg := s.deps.Config()
	st := Status{Version: s.deps.Version}
	if src, err := fetch.ResolveSource(cfg.Feed.Preset, cfg.Feed.URL); err == nil {
		st.Feed = src
	}
	if run, ok := s.deps.Runner.Active(); ok {
		st.Active = &run
	}
	if run, ok := s.deps.Runner.LastFinished(jobs.KindMap); ok {
		st.LastMap = &run
	}
	if run, ok := s.deps.Runner.LastFinished(jobs.KindImport); ok {
		st.LastImport = &run
	}

	if s.deps.Service != nil {
		persisted, err := s.deps.Service.State().Load()
		if err != nil {
			st.Errors = append(st.Errors, err.Error())
		} else {
			st.State = &persisted
		}
		st.LiveSource = s.deps.Service.LiveSourceState()
	}

	path := cfg.InDataDir(cfg.Mapping.Path)
	if m, err := mapping.NewStore(path).Load(); err != nil {
		st.Errors = append(st.Errors, err.Error())
	} else {
		st.Mapping = &MappingSummary{Path: path, Channels: len(m), Refs: m.RefCount()}
	}

	if s.deps.Store != nil {
		stats, err := s.deps.Store.Stats(ctx)
		if err != nil {
			st.Errors = append(st.Errors, err.Error())
		} else {
			st.Store = &stats
		}
	}
	return st
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	kind, err := jobs.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.deps.Runner.Trigger(kind)
	switch {
	case errors.Is(err, jobs.ErrRunInProgress):
		body := map[string]string{"error": err.Error()}
		if active, ok := s.deps.Runner.Active(); ok {
			body["activeRun"] = active.ID
		}
		writeJSON(w, http.StatusConflict, body)
		return
	case errors.Is(err, jobs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "api.run_triggered").
		Str(xglog.FieldRunID, run.ID).
		Str(xglog.FieldKind, string(kind)).
		Msg("run triggered")
	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Runner.Recent())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.deps.Runner.Status(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, jobs.ErrRunNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// MappingResponse is the body of GET /api/v1/mapping.
type MappingResponse struct {
	MappingSummary
	Mapping mapping.Mapping `json:"mapping"`
	Report  *match.Report   `json:"report,omitempty"`
}

func (s *Server) handleMapping(w http.ResponseWriter, _ *http.Request) {
	cfg := s.deps.Config()
	path := cfg.InDataDir(cfg.Mapping.Path)
	m, err := mapping.NewStore(path).Load()
	if errors.Is(err, mapping.ErrCorrupt) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := MappingResponse{
		MappingSummary: MappingSummary{Path: path, Channels: len(m), Refs: m.RefCount()},
		Mapping:        m,
	}
	if run, ok := s.deps.Runner.LastFinished(jobs.KindMap); ok && run.Summary != nil {
		resp.Report = run.Summary.Report
	}
	writeJSON(w, http.StatusOK, resp)
}

// EventsResponse is the body of GET /api/v1/events.
type EventsResponse struct {
	Ref    string      `json:"ref"`
	From   int64       `json:"from"`
	To     int64       `json:"to"`
	Events []epg.Event `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not available")
		return
	}
	q := r.URL.Query()
	ref := q.Get("ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required")
		return
	}
	from := s.now()
	if v := q.Get("from"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a unix timestamp")
			return
		}
		from = time.Unix(sec, 0)
	}
	to := from.Add(defaultEventsSpan)
	if v := q.Get("to"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be a unix timestamp")
			return
		}
		to = time.Unix(sec, 0)
	}
	if !to.After(from) || to.Sub(from) > maxEventsSpan {
		writeError(w, http.StatusBadRequest, "to must be after from and within 14 days")
		return
	}

	events, err := s.deps.Store.Lookup(r.Context(), ref, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []epg.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Ref: ref, From: from.Unix(), To: to.Unix(), Events: events})
}
