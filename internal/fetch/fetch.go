// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fetch downloads the XMLTV feed to a local file.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/telemetry"
)

// ErrImplausibleArtifact marks a download that is too small or whose
// container magic does not match the URL.
var ErrImplausibleArtifact = errors.New("implausible feed artifact")

// Defaults for Options.
const (
	DefaultRetries   = 3
	DefaultTimeout   = 120 * time.Second
	DefaultPause     = 2 * time.Second
	DefaultMinBytes  = 1000
	DefaultUserAgent = "Mozilla/5.0 (e2epg)"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Options configures a Fetcher.
type Options struct {
	Retries    int
	Timeout    time.Duration
	Pause      time.Duration
	MinBytes   int64
	MaxBytes   int64
	UserAgent  string
	HTTPClient *http.Client
}

// Fetcher downloads sources with retries and replaces dest atomically.
type Fetcher struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

// New applies defaults to opts.
func New(opts Options) *Fetcher {
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Pause < 0 {
		opts.Pause = 0
	} else if opts.Pause == 0 {
		opts.Pause = DefaultPause
	}
	if opts.MinBytes <= 0 {
		opts.MinBytes = DefaultMinBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{opts: opts, client: client, logger: xglog.WithComponent("fetch")}
}

// Fetch copies source (http, https, file:// or a local path) to dest. dest
// is only replaced by a download that passed verification.
func (f *Fetcher) Fetch(ctx context.Context, source, dest string) (err error) {
	ctx, span := telemetry.Tracer("e2epg/fetch").Start(ctx, "fetch.feed")
	attempts := 0
	var written int64
	defer func() { telemetry.EndSpan(span, err, telemetry.FetchAttributes(source, attempts, written)...) }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(f.opts.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		attempts = attempt

		n, err := f.attempt(ctx, source, dest)
		if err == nil {
			written = n
			metrics.IncFetchAttempt("ok")
			metrics.RecordFetchBytes(n)
			f.logger.Info().
				Str(xglog.FieldEvent, "fetch.done").
				Str(xglog.FieldFeedURL, source).
				Str(xglog.FieldPath, dest).
				Int64("bytes", n).
				Int("attempt", attempt).
				Msg("feed downloaded")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.IncFetchAttempt("cancelled")
			return ctxErr
		}

		lastErr = err
		outcome := "error"
		if errors.Is(err, ErrImplausibleArtifact) {
			outcome = "implausible"
		}
		metrics.IncFetchAttempt(outcome)
		f.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "fetch.attempt_failed").
			Str(xglog.FieldFeedURL, source).
			Int("attempt", attempt).
			Int("max_attempts", f.opts.Retries).
			Msg("feed download attempt failed")
	}
	return fmt.Errorf("fetch %s after %d attempts: %w", source, f.opts.Retries, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, source, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	body, err := f.open(ctx, source)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	pending, err := renameio.NewPendingFile(dest)
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	var src io.Reader = body
	if f.opts.MaxBytes > 0 {
		src = io.LimitReader(body, f.opts.MaxBytes+1)
	}
	n, err := io.Copy(pending, src)
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	if f.opts.MaxBytes > 0 && n > f.opts.MaxBytes {
		return n, fmt.Errorf("%w: larger than %d bytes", ErrImplausibleArtifact, f.opts.MaxBytes)
	}
	if n <= f.opts.MinBytes {
		return n, fmt.Errorf("%w: only %d bytes", ErrImplausibleArtifact, n)
	}

	head := make([]byte, 4)
	if _, err := pending.ReadAt(head, 0); err != nil {
		return n, fmt.Errorf("read back download: %w", err)
	}
	if err := checkMagic(source, head); err != nil {
		return n, err
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("replace %s: %w", dest, err)
	}
	return n, nil
}

func (f *Fetcher) open(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return os.Open(source)
	}

	switch u.Scheme {
	case "file":
		return os.Open(filepath.FromSlash(u.Path))
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported feed scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, fmt.Errorf("unexpected HTTP status %d", res.StatusCode)
	}
	return res.Body, nil
}

// checkMagic verifies the container for URLs naming gzip or zstd.
func checkMagic(source string, head []byte) error {
	ext := Extension(source)
	switch {
	case strings.HasSuffix(ext, ".gz") && !bytes.HasPrefix(head, gzipMagic):
		return fmt.Errorf("%w: missing gzip header", ErrImplausibleArtifact)
	case strings.HasSuffix(ext, ".zst") && !bytes.HasPrefix(head, zstdMagic):
		return fmt.Errorf("%w: missing zstd header", ErrImplausibleArtifact)
	}
	return nil
}
