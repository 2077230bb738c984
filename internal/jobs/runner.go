// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs runs map and import jobs one at a time and keeps their history.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/telemetry"
)

// Kind selects the job a run executes.
type Kind string

const (
	KindMap    Kind = "map"
	KindImport Kind = "import"
)

// ParseKind accepts "map" and "import".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMap, KindImport:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown run kind %q", s)
}

// State is the lifecycle position of a run.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	// ErrRunInProgress is returned by Trigger while another run is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrRunNotFound is returned for unknown or evicted run IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrClosed is returned by Trigger after Close.
	ErrClosed = errors.New("runner closed")
)

// DefaultTimeout bounds a run when the timeout func yields nothing usable.
const DefaultTimeout = 30 * time.Minute

const historySize = 20

// Run is a snapshot of one job execution.
type Run struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
}

// Done reports whether the run has finished.
func (r Run) Done() bool { return r.State != StateRunning }

// Executor performs the work of a run.
type Executor interface {
	Execute(ctx context.Context, kind Kind) (Summary, error)
}

type record struct {
	run  Run
	done chan struct{}
}

// Runner executes at most one run at a time, each on its own goroutine.
type Runner struct {
	exec    Executor
	timeout func() time.Duration
	clock   func() time.Time
	logger  zerolog.Logger

	gate sync.Mutex

	mu     sync.Mutex
	runs   map[string]*record
	order  []string
	active string
	closed bool

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. timeout is consulted at the start of each run
// so configuration reloads apply to the next run.
func NewRunner(exec Executor, timeout func() time.Duration) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		exec:    exec,
		timeout: timeout,
		clock:   time.Now,
		logger:  xglog.WithComponent("jobs"),
		runs:    make(map[string]*record),
		base:    base,
		cancel:  cancel,
	}
}

// Trigger starts a run and returns its snapshot without waiting for it.
func (r *Runner) Trigger(kind Kind) (Run, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Run{}, err
	}
	if !r.gate.TryLock() {
		return Run{}, ErrRunInProgress
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.gate.Unlock()
		return Run{}, ErrClosed
	}
	rec := &record{
		run: Run{
			ID:        uuid.NewString(),
			Kind:      kind,
			State:     StateRunning,
			StartedAt: r.clock().UTC(),
		},
		done: make(chan struct{}),
	}
	r.runs[rec.run.ID] = rec
	r.order = append(r.order, rec.run.ID)
	r.active = rec.run.ID
	r.evictLocked()
	snapshot := rec.run
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.SetRunInProgress(true)
	go r.execute(rec)
	return snapshot, nil
}

// RunSync triggers a run and blocks until it finishes or ctx ends. When ctx
// ends first the run is left running and ctx's error is returned.
func (r *Runner) RunSync(ctx context.Context, kind Kind) (Run, error) {
	run, err := r.Trigger(kind)
	if err != nil {
		return Run{}, err
	}
	return r.Wait(ctx, run.ID)
}

func (r *Runner) execute(rec *record) {
	defer r.wg.Done()
	defer r.gate.Unlock()

	timeout := DefaultTimeout
	if r.timeout != nil {
		if d := r.timeout(); d > 0 {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(r.base, timeout)
	defer cancel()

	ctx = xglog.ContextWithRunID(ctx, rec.run.ID)
	ctx, span := telemetry.Tracer("e2epg/jobs").Start(ctx, "jobs."+string(rec.run.Kind))
	span.SetAttributes(telemetry.RunAttributes(rec.run.ID, string(rec.run.Kind))...)
	logger := xglog.WithContext(ctx, r.logger)
	logger.Info().
		Str(xglog.FieldEvent, "jobs.run_started").
		Str(xglog.FieldKind, string(rec.run.Kind)).
		Dur("timeout", timeout).
		Msg("run started")

	start := r.clock()
	summary, err := r.safeExecute(ctx, rec.run.Kind)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	elapsed := r.clock().Sub(start)
	telemetry.EndSpan(span, err)
	metrics.RecordRun(string(rec.run.Kind), elapsed, err)
	metrics.SetRunInProgress(false)

	finished := r.clock().UTC()
	r.mu.Lock()
	rec.run.FinishedAt = &finished
	rec.run.Summary = &summary
	if err != nil {
		rec.run.State = StateFailed
		rec.run.Error = err.Error()
	} else {
		rec.run.State = StateSucceeded
	}
	if r.active == rec.run.ID {
		r.active = ""
	}
	close(rec.done)
	r.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "jobs.run_failed").
			Str(xglog.FieldKind, string(rec.run.Kind)).
			Dur("duration", elapsed).
			Msg("run failed")
		return
	}
	logger.Info().
		Str(xglog.FieldEvent, "jobs.run_succeeded").
		Str(xglog.FieldKind, string(rec.run.Kind)).
		Dur("duration", elapsed).
		Msg("run succeeded")
}

func (r *Runner) safeExecute(ctx context.Context, kind Kind) (summary Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run panicked: %v", p)
		}
	}()
	return r.exec.Execute(ctx, kind)
}

// evictLocked drops the oldest finished runs beyond the history size.
func (r *Runner) evictLocked() {
	for len(r.order) > historySize {
		evicted := false
		for i, id := range r.order {
			if rec := r.runs[id]; rec != nil && rec.run.Done() {
				delete(r.runs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// Status returns the snapshot of a run.
func (r *Runner) Status(id string) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return rec.run, true
}

// Wait blocks until the run finishes or ctx ends.
func (r *Runner) Wait(ctx context.Context, id string) (Run, error) {
	r.mu.Lock()
	rec, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return Run{}, ErrRunNotFound
	}
	select {
	case <-rec.done:
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rec.run, nil
}

// Active returns the running run, if any.
func (r *Runner) Active() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return Run{}, false
	}
	return r.runs[r.active].run, true
}

// Recent returns retained runs, newest first.
func (r *Runner) Recent() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.runs[r.order[i]].run)
	}
	return out
}

// LastFinished returns the most recent finished run of kind.
func (r *Runner) LastFinished(kind Kind) (Run, bool) {
	for _, run := range r.Recent() {
		if run.Kind == kind && run.Done() {
			return run, true
		}
	}
	return Run{}, false
}

// Close cancels the active run and waits for it to finish or ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
