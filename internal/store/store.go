// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store keeps imported programme events in SQLite. It serves as the
// pipeline's event sink and as an event source for previously imported data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/e2epg/internal/epg"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
	service_ref TEXT NOT NULL,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	imported_at INTEGER NOT NULL,
	PRIMARY KEY (service_ref, start_ts)
);
CREATE INDEX IF NOT EXISTS idx_events_end ON events(end_ts);
`

const upsertEvent = `
INSERT INTO events (service_ref, start_ts, end_ts, title, description, imported_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(service_ref, start_ts) DO UPDATE SET
	end_ts = excluded.end_ts,
	title = excluded.title,
	description = excluded.description,
	imported_at = excluded.imported_at
`

// Store buffers events until Commit writes them in one transaction.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []pendingEvent
}

type pendingEvent struct {
	ref string
	ev  epg.Event
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, cfg sqlite.Config) (*Store, error) {
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		path:   path,
		logger: xglog.WithComponent("store"),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("event store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	v, err := sqlite.UserVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if v >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Path is the database file.
func (s *Store) Path() string { return s.path }

// AddEvent buffers ev for ref.
func (s *Store) AddEvent(ref string, ev epg.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, pendingEvent{ref: ref, ev: ev})
	s.mu.Unlock()
}

// Commit writes buffered events. The buffer is cleared whether or not the
// write succeeds; an empty buffer is a no-op.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("event store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertEvent)
	if err != nil {
		return fmt.Errorf("event store: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	importedAt := s.now().Unix()
	for _, p := range batch {
		if _, err := stmt.ExecContext(ctx, p.ref, p.ev.Start, p.ev.End(), p.ev.Title, p.ev.Description, importedAt); err != nil {
			return fmt.Errorf("event store: insert %s@%d: %w", p.ref, p.ev.Start, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("event store: commit: %w", err)
	}

	s.logger.Debug().
		Str(xglog.FieldEvent, "store.commit").
		Int("events", len(batch)).
		Msg("events committed")
	return nil
}

// Lookup returns the events of ref overlapping [start, end), ordered by start.
func (s *Store) Lookup(ctx context.Context, ref string, start, end time.Time) ([]epg.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ts, end_ts, title, description FROM events
		 WHERE service_ref = ? AND end_ts > ? AND start_ts < ?
		 ORDER BY start_ts`,
		ref, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("event store: lookup %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	var out []epg.Event
	for rows.Next() {
		var ev epg.Event
		var endTS int64
		if err := rows.Scan(&ev.Start, &endTS, &ev.Title, &ev.Description); err != nil {
			return nil, fmt.Errorf("event store: scan: %w", err)
		}
		ev.Duration = endTS - ev.Start
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats describes the stored data.
type Stats struct {
	Events   int       `json:"events"`
	Services int       `json:"services"`
	LastEnd  time.Time `json:"lastEnd,omitempty"`
}

// Stats counts stored events and services.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT service_ref), MAX(end_ts) FROM events`).
		Scan(&st.Events, &st.Services, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("event store: stats: %w", err)
	}
	if last.Valid {
		st.LastEnd = time.Unix(last.Int64, 0).UTC()
	}
	return st, nil
}

// Prune deletes events that ended at or before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE end_ts <= ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("event store: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info().
		Str(xglog.FieldEvent, "store.prune").
		Int64("deleted", n).
		Time("cutoff", cutoff).
		Msg("pruned expired events")
	return n, nil
}

// Verify runs an integrity check on the database file.
func (s *Store) Verify(ctx context.Context, mode string) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		s.logger.Debug().Err(err).Str(xglog.FieldEvent, "store.checkpoint_failed").Msg("checkpoint before verify failed")
	}
	return sqlite.VerifyIntegrity(ctx, s.path, mode)
}

// Close releases the database. Uncommitted events are lost.
func (s *Store) Close() error {
	return s.db.Close()
}
