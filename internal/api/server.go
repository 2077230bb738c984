// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the control API of the daemon.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/e2epg/internal/api/middleware"
	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/health"
	"github.com/ManuGH/e2epg/internal/jobs"
	"github.com/ManuGH/e2epg/internal/store"
)

// Deps are the collaborators of a Server. Store may be nil.
type Deps struct {
	Config  func() config.Config
	Runner  *jobs.Runner
	Service *jobs.Service
	Store   *store.Store
	Version string
}

// Server implements the HTTP handlers.
type Server struct {
	deps   Deps
	group  singleflight.Group
	health *health.Manager
	now    func() time.Time
}

// New creates a Server.
func New(deps Deps) *Server {
	s := &Server{deps: deps, now: time.Now}
	s.health = s.newHealth()
	return s
}

// newHealth registers the readiness checks for the configured components.
func (s *Server) newHealth() *health.Manager {
	m := health.NewManager(s.deps.Version)
	cfg := s.deps.Config()
	if s.deps.Store != nil {
		m.RegisterChecker(health.NewFuncChecker("store", func(ctx context.Context) error {
			_, err := s.deps.Store.Stats(ctx)
			return err
		}))
	}
	m.RegisterChecker(health.NewFileChecker("mapping", cfg.InDataDir(cfg.Mapping.Path)))
	if s.deps.Service != nil {
		m.RegisterChecker(health.NewFreshnessChecker("last_import", cfg.Import.MaxAge.D(), func() (time.Time, error) {
			st, err := s.deps.Service.State().Load()
			return st.LastImport, err
		}))
	}
	return m
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Observe("e2epg/api"))

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(middleware.RateLimit(s.deps.Config().API.TriggerPerHour, time.Hour)).
			Post("/runs/{kind}", s.handleTrigger)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/mapping", s.handleMapping)
		r.Get("/events", s.handleEvents)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
