// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/e2epg/internal/cache"
	"github.com/ManuGH/e2epg/internal/catalog"
	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/epg"
	"github.com/ManuGH/e2epg/internal/fetch"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/match"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/normalize"
	"github.com/ManuGH/e2epg/internal/openwebif"
	"github.com/ManuGH/e2epg/internal/pipeline"
	"github.com/ManuGH/e2epg/internal/store"
)

// ErrNoStore is returned by imports when no event store was provided.
var ErrNoStore = errors.New("event store not configured")

// Fetcher downloads a feed to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, source, dest string) error
}

// Summary is the outcome of a map or import run.
type Summary struct {
	Feed        string          `json:"feed,omitempty"`
	FetchError  string          `json:"fetchError,omitempty"`
	Services    int             `json:"services"`
	Channels    int             `json:"channels,omitempty"`
	MappingRefs int             `json:"mappingRefs"`
	Events      int             `json:"events"`
	Pruned      int64           `json:"pruned,omitempty"`
	Report      *match.Report   `json:"report,omitempty"`
	Pipeline    *pipeline.Stats `json:"pipeline,omitempty"`
}

// Options wires a Service. Config is required; everything else has a default
// derived from the current configuration.
type Options struct {
	Config  func() config.Config
	Store   *store.Store
	Cache   cache.Cache
	Fetcher Fetcher
	Source  pipeline.EventSource
	State   *StateFile
	Clock   func() time.Time
}

// Service executes map and import jobs against the configuration current at
// the start of each job.
type Service struct {
	opts Options

	mu      sync.Mutex
	owiOpts config.OpenWebIFConfig
	owi     *openwebif.Client
}

// NewService applies defaults to opts.
func NewService(opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NewNoOpCache()
	}
	if opts.State == nil {
		opts.State = NewStateFile(opts.Config().StatePath())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{opts: opts}
}

// State returns the persisted run bookkeeping.
func (s *Service) State() *StateFile { return s.opts.State }

// Execute implements Executor.
func (s *Service) Execute(ctx context.Context, kind Kind) (Summary, error) {
	switch kind {
	case KindMap:
		return s.Map(ctx)
	case KindImport:
		return s.Import(ctx)
	}
	return Summary{}, fmt.Errorf("unknown run kind %q", kind)
}

// Map downloads the feed, resolves every bouquet service against it and
// replaces the stored mapping.
func (s *Service) Map(ctx context.Context) (Summary, error) {
	cfg := s.opts.Config()
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	source, feedPath, err := s.fetchFeed(ctx, cfg)
	sum := Summary{Feed: source}
	if err != nil {
		return sum, err
	}

	resolver := NewResolver(cfg)
	services, err := s.Lister(cfg).List(ctx)
	if err != nil {
		return sum, err
	}
	sum.Services = len(services)

	idx := epg.LoadIndex(ctx, feedPath, resolver.Normalizer(), IndexOptions(cfg))
	if idx.Len() == 0 && idx.Err() != nil {
		return sum, fmt.Errorf("index feed: %w", idx.Err())
	}
	m, rep := resolver.ResolveAll(ctx, services, idx, nil)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	sum.Report = &rep

	if err := mapping.NewStore(cfg.InDataDir(cfg.Mapping.Path)).Save(m); err != nil {
		return sum, fmt.Errorf("save mapping: %w", err)
	}
	sum.Channels = len(m)
	sum.MappingRefs = m.RefCount()
	metrics.RecordMappingRefs(sum.MappingRefs)

	now := s.opts.Clock()
	if err := s.opts.State.Update(func(st *PersistedState) { st.LastMap = now }); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "jobs.state_write_failed").Msg("could not persist run state")
	}
	logger.Info().
		Str(xglog.FieldEvent, "jobs.map_done").
		Int("services", sum.Services).
		Int("channels", sum.Channels).
		Int("refs", sum.MappingRefs).
		Int("unmatched", len(rep.Unmatched)).
		Msg("mapping saved")
	return sum, nil
}

// Import downloads the feed and runs the merge pipeline into the event store,
// then prunes events past the retention period.
func (s *Service) Import(ctx context.Context) (Summary, error) {
	cfg := s.opts.Config()
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	sum := Summary{}
	if s.opts.Store == nil {
		return sum, ErrNoStore
	}

	mappings := mapping.NewStore(cfg.InDataDir(cfg.Mapping.Path))
	if !cfg.Mapping.Refresh {
		m, err := mappings.Load()
		if err != nil {
			return sum, fmt.Errorf("load mapping: %w", err)
		}
		if len(m) == 0 {
			return sum, fmt.Errorf("%w: run a map job or enable mapping.refresh", pipeline.ErrNoMapping)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return sum, fmt.Errorf("feed timezone: %w", err)
	}

	source, feedPath, err := s.fetchFeed(ctx, cfg)
	sum.Feed = source
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		// The fetcher only replaces the file after a verified download, so a
		// previous feed may still be present.
		sum.FetchError = err.Error()
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "jobs.fetch_failed").
			Str(xglog.FieldPath, feedPath).
			Msg("feed download failed, importing from the last downloaded feed")
	}

	p := pipeline.New(pipeline.Deps{
		Catalog:  s.Lister(cfg),
		Resolver: NewResolver(cfg),
		Mappings: mappings,
		FeedPath: feedPath,
		Source:   s.source(cfg),
		Sink:     s.opts.Store,
		Clock:    s.opts.Clock,
	}, pipeline.Options{
		BatchSize:      cfg.Import.BatchSize,
		Window:         cfg.Import.Window.D(),
		Limits:         epg.Limits{TitleRunes: cfg.Import.TitleLimit, DescriptionRunes: cfg.Import.DescriptionLimit},
		RefreshMapping: cfg.Mapping.Refresh,
		Fallback:       fallbackTable(cfg.Import.Fallback),
		Location:       loc,
		Index:          IndexOptions(cfg),
	})
	stats, err := p.Run(ctx)
	sum.Pipeline = &stats
	sum.Services = stats.Services
	sum.MappingRefs = stats.MappingRefs
	sum.Events = stats.Events()
	sum.Report = stats.Report
	if err != nil {
		return sum, err
	}

	now := s.opts.Clock()
	if retention := cfg.Store.Retention.D(); retention > 0 {
		pruned, err := s.opts.Store.Prune(ctx, now.Add(-retention))
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "jobs.prune_failed").Msg("could not prune expired events")
		}
		sum.Pruned = pruned
	}

	if err := s.opts.State.Update(func(st *PersistedState) {
		st.LastImport = now
		st.LastImportEvents = sum.Events
	}); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "jobs.state_write_failed").Msg("could not persist run state")
	}
	logger.Info().
		Str(xglog.FieldEvent, "jobs.import_done").
		Int("services", sum.Services).
		Int("events", sum.Events).
		Int64("pruned", sum.Pruned).
		Msg("events imported")
	return sum, nil
}

// fetchFeed resolves the configured source and downloads it. The feed path is
// returned even when the download fails.
func (s *Service) fetchFeed(ctx context.Context, cfg config.Config) (string, string, error) {
	source, err := fetch.ResolveSource(cfg.Feed.Preset, cfg.Feed.URL)
	if err != nil {
		return "", "", err
	}
	dest := FeedPath(cfg, source)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return source, dest, fmt.Errorf("create feed dir: %w", err)
	}
	f := s.opts.Fetcher
	if f == nil {
		f = fetch.New(fetch.Options{
			Retries:  cfg.Feed.Retries,
			Timeout:  cfg.Feed.Timeout.D(),
			Pause:    cfg.Feed.Pause.D(),
			MinBytes: cfg.Feed.MinBytes,
			MaxBytes: cfg.Feed.MaxBytes,
		})
	}
	if err := f.Fetch(ctx, source, dest); err != nil {
		return source, dest, fmt.Errorf("fetch feed: %w", err)
	}
	return source, dest, nil
}

// FeedPath is where the downloaded feed for source is kept.
func FeedPath(cfg config.Config, source string) string {
	if cfg.Feed.Path != "" {
		return cfg.InDataDir(cfg.Feed.Path)
	}
	return filepath.Join(cfg.DataDir, "epg_feed"+fetch.Extension(source))
}

// Lister returns the bouquet catalog for cfg behind the service cache.
func (s *Service) Lister(cfg config.Config) catalog.Lister {
	cat := catalog.New(catalog.Options{BouquetDir: cfg.Bouquets.Dir, Pattern: cfg.Bouquets.Pattern})
	return countingLister{next: catalog.Cached(cat, s.opts.Cache, cfg.Cache.TTL.D())}
}

// source returns the live EPG source, reusing the OpenWebIF client while its
// settings are unchanged so the breaker state survives between runs.
func (s *Service) source(cfg config.Config) pipeline.EventSource {
	if s.opts.Source != nil {
		return s.opts.Source
	}
	if cfg.OpenWebIF.BaseURL == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owi == nil || s.owiOpts != cfg.OpenWebIF {
		client, err := openwebif.New(openwebif.Options{
			BaseURL:          cfg.OpenWebIF.BaseURL,
			Username:         cfg.OpenWebIF.Username,
			Password:         cfg.OpenWebIF.Password,
			Timeout:          cfg.OpenWebIF.Timeout.D(),
			RateLimit:        cfg.OpenWebIF.RateLimit,
			Burst:            cfg.OpenWebIF.Burst,
			FailureThreshold: cfg.OpenWebIF.FailureThreshold,
			ResetTimeout:     cfg.OpenWebIF.ResetTimeout.D(),
		})
		if err != nil {
			logger := xglog.WithComponent("jobs")
			logger.Warn().Err(err).
				Str(xglog.FieldEvent, "jobs.openwebif_disabled").
				Msg("live EPG source disabled")
			return nil
		}
		s.owi = client
		s.owiOpts = cfg.OpenWebIF
	}
	return s.owi
}

// LiveSourceState reports the OpenWebIF breaker state, or "" before the
// client was first used.
func (s *Service) LiveSourceState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owi == nil {
		return ""
	}
	return s.owi.Breaker().State().String()
}

// NewNormalizer builds the normalizer for cfg.
func NewNormalizer(cfg config.Config) *normalize.Normalizer {
	junk := append(normalize.DefaultJunkWords(), cfg.Matching.ExtraJunkWords...)
	return normalize.New(junk)
}

// NewResolver builds the resolver for cfg. Zero thresholds fall back to the
// defaults.
func NewResolver(cfg config.Config) *match.Resolver {
	th := match.DefaultThresholds()
	if cfg.Matching.ContainmentMaxDelta > 0 {
		th.ContainmentMaxDelta = cfg.Matching.ContainmentMaxDelta
	}
	if cfg.Matching.Containment > 0 {
		th.Containment = cfg.Matching.Containment
	}
	if cfg.Matching.Token > 0 {
		th.Token = cfg.Matching.Token
	}
	if cfg.Matching.Similarity > 0 {
		th.Similarity = cfg.Matching.Similarity
	}
	return match.NewResolver(NewNormalizer(cfg), match.AliasTable(cfg.Mapping.Aliases), th)
}

// IndexOptions derives feed index options from cfg.
func IndexOptions(cfg config.Config) epg.IndexOptions {
	return epg.IndexOptions{RegionalSuffixes: cfg.Feed.RegionalSuffixes}
}

// fallbackTable treats an absent section as the built-in table and an empty
// one as disabled.
func fallbackTable(entries map[string]string) pipeline.FallbackTable {
	if entries == nil {
		return pipeline.DefaultFallbackTable()
	}
	return pipeline.NewFallbackTable(entries)
}

// countingLister records how many services of each kind a listing found.
type countingLister struct {
	next catalog.Lister
}

func (l countingLister) List(ctx context.Context) ([]catalog.Service, error) {
	services, err := l.next.List(ctx)
	if err != nil {
		return services, err
	}
	iptv, sat := 0, 0
	for _, svc := range services {
		if svc.Kind == catalog.KindIPTV {
			iptv++
		} else {
			sat++
		}
	}
	metrics.RecordServicesDiscovered(iptv, sat)
	return services, nil
}
