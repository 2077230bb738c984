// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)

// receiver serves /api/epgservice from a per-ref event table.
type receiver struct {
	mu      sync.Mutex
	events  map[string][]map[string]any
	status  int
	hits    atomic.Int32
	lastURL string
}

func newReceiver(t *testing.T) (*receiver, *httptest.Server) {
	t.Helper()
	rcv := &receiver{events: map[string][]map[string]any{}, status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rcv.hits.Add(1)
		rcv.mu.Lock()
		defer rcv.mu.Unlock()
		rcv.lastURL = r.URL.String()
		if r.URL.Path != "/api/epgservice" {
			http.NotFound(w, r)
			return
		}
		if rcv.status != http.StatusOK {
			w.WriteHeader(rcv.status)
			return
		}
		events := rcv.events[r.URL.Query().Get("sRef")]
		if events == nil {
			events = []map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "events": events})
	}))
	t.Cleanup(srv.Close)
	return rcv, srv
}

func (r *receiver) setStatus(code int) {
	r.mu.Lock()
	r.status = code
	r.mu.Unlock()
}

func owiEvent(offset time.Duration, secs int64, title string) map[string]any {
	return map[string]any{
		"id":              "1000",
		"begin_timestamp": now.Add(offset).Unix(),
		"duration_sec":    secs,
		"title":           title,
		"shortdesc":       "short",
		"longdesc":        "",
	}
}

func newClient(t *testing.T, base string, opts Options) *Client {
	t.Helper()
	opts.BaseURL = base
	if opts.RateLimit == 0 {
		opts.RateLimit = 1000
		opts.Burst = 100
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestLookupReturnsEventsInWindow(t *testing.T) {
	rcv, srv := newReceiver(t)
	rcv.events["1:0:19:3DCD:640:13E:820000:0:0:0:"] = []map[string]any{
		owiEvent(-2*time.Hour, 3600, "Ended"),
		owiEvent(-30*time.Minute, 3600, "Running"),
		owiEvent(time.Hour, 1800, "Next"),
		owiEvent(2*time.Hour, 0, "Broken"),
		owiEvent(100*time.Hour, 1800, "Too late"),
	}
	c := newClient(t, srv.URL, Options{})

	got, err := c.Lookup(context.Background(), "1:0:19:3DCD:640:13E:820000:0:0:0:", now, now.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Running", got[0].Title)
	assert.Equal(t, "short", got[0].Description)
	assert.Equal(t, "Next", got[1].Title)
	assert.Contains(t, rcv.lastURL, "endTime=4320")
}

func TestLookupUnknownServiceIsEmpty(t *testing.T) {
	_, srv := newReceiver(t)
	c := newClient(t, srv.URL, Options{})
	got, err := c.Lookup(context.Background(), "1:0:1:X:", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookupClassifiesErrors(t *testing.T) {
	rcv, srv := newReceiver(t)
	c := newClient(t, srv.URL, Options{})

	rcv.setStatus(http.StatusInternalServerError)
	_, err := c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrUpstreamError)
	var owi *OWIError
	require.True(t, errors.As(err, &owi))
	assert.Equal(t, http.StatusInternalServerError, owi.Status)

	rcv.setStatus(http.StatusNotFound)
	_, err = c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	rcv, srv := newReceiver(t)
	rcv.setStatus(http.StatusBadGateway)
	c := newClient(t, srv.URL, Options{FailureThreshold: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
		require.ErrorIs(t, err, ErrUpstreamError)
	}
	assert.Equal(t, StateOpen, c.Breaker().State())

	_, err := c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 2, rcv.hits.Load())
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	rcv, srv := newReceiver(t)
	rcv.setStatus(http.StatusNotFound)
	c := newClient(t, srv.URL, Options{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, StateClosed, c.Breaker().State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	clock := now
	cb.now = func() time.Time { return clock }
	boom := errors.New("boom")

	require.ErrorIs(t, cb.Execute(func() error { return boom }, nil), boom)
	assert.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(func() error { return nil }, nil), ErrCircuitOpen)

	clock = clock.Add(2 * time.Minute)
	require.ErrorIs(t, cb.Execute(func() error { return boom }, nil), boom)
	assert.Equal(t, StateOpen, cb.State())

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }, nil))
	assert.Equal(t, StateClosed, cb.State())
}

func TestLookupHonoursCancelledContext(t *testing.T) {
	_, srv := newReceiver(t)
	c := newClient(t, srv.URL, Options{RateLimit: 0.001, Burst: 1})
	_, err := c.Lookup(context.Background(), "ref", now, now.Add(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Lookup(ctx, "ref", now, now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, StateClosed, c.Breaker().State())
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "receiver.local", "ftp://receiver"} {
		_, err := New(Options{BaseURL: base})
		assert.Error(t, err, base)
	}
}
