// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog enumerates receiver services from Enigma2 bouquet files.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/e2epg/internal/log"
)

// ErrCatalogUnavailable is returned when the bouquet directory cannot be read.
var ErrCatalogUnavailable = errors.New("service catalog unavailable")

// Kind classifies a service by how the receiver obtains it.
type Kind string

const (
	KindIPTV Kind = "iptv"
	KindSAT  Kind = "sat"
)

// Service is one receiver service as found in a bouquet.
type Service struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Lister enumerates services.
type Lister interface {
	List(ctx context.Context) ([]Service, error)
}

// Options configures bouquet scanning.
type Options struct {
	BouquetDir       string
	Pattern          string   // glob inside BouquetDir, default "userbouquet.*.tv"
	IPTVTypes        []int    // default 4097, 5001, 5002, 5003, 8193
	SeparatorMarkers []string // default "###", "---"
	Logger           *zerolog.Logger
}

// DefaultIPTVTypes are the service type codes used by stream entries.
var DefaultIPTVTypes = []int{4097, 5001, 5002, 5003, 8193}

// DefaultSeparatorMarkers mark bouquet separator rows.
var DefaultSeparatorMarkers = []string{"###", "---"}

const (
	servicePrefix     = "#SERVICE "
	descriptionPrefix = "#DESCRIPTION"
	maxLineBytes      = 1 << 20
)

// Catalog reads bouquets on every List call.
type Catalog struct {
	opts      Options
	iptvTypes map[int]struct{}
	logger    zerolog.Logger
}

// New applies defaults to opts.
func New(opts Options) *Catalog {
	if opts.Pattern == "" {
		opts.Pattern = "userbouquet.*.tv"
	}
	if len(opts.IPTVTypes) == 0 {
		opts.IPTVTypes = DefaultIPTVTypes
	}
	if len(opts.SeparatorMarkers) == 0 {
		opts.SeparatorMarkers = DefaultSeparatorMarkers
	}
	logger := xglog.WithComponent("catalog")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	types := make(map[int]struct{}, len(opts.IPTVTypes))
	for _, t := range opts.IPTVTypes {
		types[t] = struct{}{}
	}
	return &Catalog{opts: opts, iptvTypes: types, logger: logger}
}

// Dir returns the absolute bouquet directory.
func (c *Catalog) Dir() string {
	if abs, err := filepath.Abs(c.opts.BouquetDir); err == nil {
		return abs
	}
	return c.opts.BouquetDir
}

// List returns services in bouquet file order, deduplicated by ref.
// A missing directory yields an empty slice and ErrCatalogUnavailable.
func (c *Catalog) List(ctx context.Context) ([]Service, error) {
	info, err := os.Stat(c.opts.BouquetDir)
	if err != nil {
		return []Service{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if !info.IsDir() {
		return []Service{}, fmt.Errorf("%w: %s is not a directory", ErrCatalogUnavailable, c.opts.BouquetDir)
	}

	files, err := filepath.Glob(filepath.Join(c.opts.BouquetDir, c.opts.Pattern))
	if err != nil {
		return []Service{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	sort.Strings(files)

	seen := make(map[string]struct{})
	out := make([]Service, 0, 256)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		services, err := c.parseFile(path)
		if err != nil {
			c.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "catalog.file_skipped").
				Str(xglog.FieldPath, path).
				Msg("bouquet file unreadable, skipping")
			continue
		}
		for _, s := range services {
			if _, dup := seen[s.Ref]; dup {
				continue
			}
			seen[s.Ref] = struct{}{}
			out = append(out, s)
		}
	}

	c.logger.Debug().
		Str(xglog.FieldEvent, "catalog.scan").
		Int("files", len(files)).
		Int("services", len(out)).
		Msg("bouquets scanned")
	return out, nil
}

func (c *Catalog) parseFile(path string) ([]Service, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a glob inside the configured bouquet dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var (
		out     []Service
		pending *Service
	)
	finalize := func() {
		if pending == nil {
			return
		}
		if !c.isSeparator(pending.Name) && utf8.RuneCountInString(pending.Name) >= 2 {
			out = append(out, *pending)
		}
		pending = nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.ToValidUTF8(scanner.Text(), ""))
		switch {
		case strings.HasPrefix(line, servicePrefix):
			finalize()
			ref := strings.TrimSpace(strings.TrimPrefix(line, servicePrefix))
			if kind, ok := c.classify(ref); ok {
				pending = &Service{Ref: ref, Name: strings.TrimSpace(lastField(ref)), Kind: kind}
			}
		case strings.HasPrefix(line, descriptionPrefix):
			if pending == nil {
				continue
			}
			desc := strings.TrimSpace(strings.TrimPrefix(line, descriptionPrefix))
			if desc != "" && !c.isSeparator(desc) {
				pending.Name = desc
			}
		}
	}
	finalize()
	if err := scanner.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// classify reports the kind of a service reference; ok is false for markers
// and unsupported types.
func (c *Catalog) classify(ref string) (Kind, bool) {
	head, _, found := strings.Cut(ref, ":")
	if !found {
		return "", false
	}
	typ, err := strconv.Atoi(head)
	if err != nil {
		return "", false
	}
	if _, ok := c.iptvTypes[typ]; ok || hasStreamURL(ref) {
		return KindIPTV, true
	}
	if strings.HasPrefix(ref, "1:0:") {
		return KindSAT, true
	}
	return "", false
}

func (c *Catalog) isSeparator(name string) bool {
	for _, m := range c.opts.SeparatorMarkers {
		if m != "" && strings.Contains(name, m) {
			return true
		}
	}
	return false
}

func hasStreamURL(ref string) bool {
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"http", "https", "rtmp"} {
		if strings.Contains(lower, scheme+"://") || strings.Contains(lower, scheme+"%3a//") {
			return true
		}
	}
	return false
}

func lastField(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
