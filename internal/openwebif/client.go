// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package openwebif reads the receiver's own EPG through the OpenWebIF JSON
// API. Client implements the pipeline's EventSource.
package openwebif

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/e2epg/internal/epg"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/metrics"
)

// Defaults for Options.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultRateLimit        = 10
	DefaultBurst            = 5
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
	maxResponseBytes        = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	Username         string
	Password         string
	Timeout          time.Duration
	RateLimit        float64
	Burst            int
	FailureThreshold int
	ResetTimeout     time.Duration
	HTTPClient       *http.Client
}

// Client queries /api/epgservice.
type Client struct {
	base    string
	user    string
	pass    string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  zerolog.Logger
}

// New validates opts and applies defaults.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("openwebif: invalid base URL %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultResetTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(u.String(), "/"),
		user:    opts.Username,
		pass:    opts.Password,
		http:    hc,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		breaker: NewCircuitBreaker("openwebif", opts.FailureThreshold, opts.ResetTimeout),
		logger:  xglog.WithComponent("openwebif"),
	}, nil
}

// Breaker exposes the circuit breaker state.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

type epgEvent struct {
	BeginTimestamp int64  `json:"begin_timestamp"`
	DurationSec    int64  `json:"duration_sec"`
	Title          string `json:"title"`
	ShortDesc      string `json:"shortdesc"`
	LongDesc       string `json:"longdesc"`
}

type epgResponse struct {
	Result *bool      `json:"result,omitempty"`
	Events []epgEvent `json:"events"`
}

// Lookup returns the events of ref overlapping [start, end).
func (c *Client) Lookup(ctx context.Context, ref string, start, end time.Time) ([]epg.Event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body epgResponse
	err := c.breaker.Execute(func() error {
		return c.getJSON(ctx, "epgservice", c.epgURL(ref, start, end), &body)
	}, countsAgainstBreaker)
	switch {
	case errors.Is(err, ErrCircuitOpen):
		metrics.IncLiveRequest("circuit_open")
		return nil, err
	case err != nil:
		metrics.IncLiveRequest("error")
		c.logger.Debug().Err(err).
			Str(xglog.FieldEvent, "openwebif.lookup_failed").
			Str(xglog.FieldServiceRef, ref).
			Msg("epg lookup failed")
		return nil, err
	}
	metrics.IncLiveRequest("ok")

	lo, hi := start.Unix(), end.Unix()
	out := make([]epg.Event, 0, len(body.Events))
	for _, e := range body.Events {
		ev := epg.Event{
			Start:       e.BeginTimestamp,
			Duration:    e.DurationSec,
			Title:       strings.TrimSpace(e.Title),
			Description: firstNonEmpty(e.LongDesc, e.ShortDesc),
		}
		if !ev.Valid() || ev.End() <= lo || ev.Start >= hi {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (c *Client) epgURL(ref string, start, end time.Time) string {
	q := url.Values{}
	q.Set("sRef", ref)
	q.Set("time", strconv.FormatInt(start.Unix(), 10))
	q.Set("endTime", strconv.FormatInt(int64(end.Sub(start)/time.Minute), 10))
	return c.base + "/api/epgservice?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, op, target string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return classifyTransport(op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return classifyStatus(op, res.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(v); err != nil {
		return &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Status: res.StatusCode, Err: err}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
