// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package match resolves receiver services to feed channels using ranked
// fingerprint strategies.
package match

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ManuGH/e2epg/internal/catalog"
	"github.com/ManuGH/e2epg/internal/epg"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/normalize"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodNone        Method = ""
	MethodExact       Method = "exact"
	MethodAlias       Method = "alias"
	MethodContainment Method = "containment"
	MethodTokens      Method = "tokens"
	MethodSimilarity  Method = "similarity"
)

// Methods lists the strategies in the order they are tried.
var Methods = []Method{MethodExact, MethodAlias, MethodContainment, MethodTokens, MethodSimilarity}

const (
	DefaultContainmentThreshold = 0.65
	DefaultContainmentMaxDelta  = 8
	DefaultTokenThreshold       = 0.6
	DefaultSimilarityCutoff     = 0.85

	progressEvery = 2000
	minKeyRunes   = 2
)

// Thresholds are the acceptance scores of the fuzzy strategies.
type Thresholds struct {
	Containment         float64
	ContainmentMaxDelta int // runes; 0 disables the length guard
	Token               float64
	Similarity          float64
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Containment:         DefaultContainmentThreshold,
		ContainmentMaxDelta: DefaultContainmentMaxDelta,
		Token:               DefaultTokenThreshold,
		Similarity:          DefaultSimilarityCutoff,
	}
}

// AliasTable maps a canonical channel label to alternative names, e.g.
// "TVP 1" -> ["Jedynka"].
type AliasTable map[string][]string

// Result is the outcome of resolving one service.
type Result struct {
	ChannelID   string
	Score       float64
	Method      Method
	Fingerprint string
}

// Matched reports whether a channel was found.
func (r Result) Matched() bool { return r.Method != MethodNone }

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	n       *normalize.Normalizer
	aliases map[string]string // alias fingerprint -> label fingerprint
	th      Thresholds
}

// NewResolver fingerprints the alias table once. When two labels claim the
// same alias, the label that sorts first wins.
func NewResolver(n *normalize.Normalizer, aliases AliasTable, th Thresholds) *Resolver {
	labels := make([]string, 0, len(aliases))
	for label := range aliases {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fps := make(map[string]string)
	for _, label := range labels {
		target := n.Fingerprint(label)
		if utf8.RuneCountInString(target) < minKeyRunes {
			continue
		}
		for _, alias := range aliases[label] {
			fp := n.Fingerprint(alias)
			if utf8.RuneCountInString(fp) < minKeyRunes || fp == target {
				continue
			}
			if _, taken := fps[fp]; !taken {
				fps[fp] = target
			}
		}
	}
	return &Resolver{n: n, aliases: fps, th: th}
}

// Normalizer returns the normalizer used for fingerprints.
func (r *Resolver) Normalizer() *normalize.Normalizer { return r.n }

// Thresholds returns the acceptance scores in use.
func (r *Resolver) Thresholds() Thresholds { return r.th }

// Resolve finds the feed channel for svc.
func (r *Resolver) Resolve(svc catalog.Service, idx *epg.Index) Result {
	tokens := r.n.Tokens(svc.Name)
	fp := r.n.Fingerprint(svc.Name)
	res := Result{Fingerprint: fp}
	if utf8.RuneCountInString(fp) < minKeyRunes || idx == nil || idx.Len() == 0 {
		return res
	}

	if id, ok := idx.Lookup(fp); ok {
		return Result{ChannelID: id, Score: 1, Method: MethodExact, Fingerprint: fp}
	}
	if target, ok := r.aliases[fp]; ok {
		if id, ok := idx.Lookup(target); ok {
			return Result{ChannelID: id, Score: 1, Method: MethodAlias, Fingerprint: fp}
		}
	}

	entries := idx.Entries()
	if id, score, ok := best(entries, r.th.Containment, func(e epg.Entry) float64 {
		return containmentScore(fp, e.Key, r.th.ContainmentMaxDelta)
	}); ok {
		return Result{ChannelID: id, Score: score, Method: MethodContainment, Fingerprint: fp}
	}
	if id, score, ok := best(entries, r.th.Token, func(e epg.Entry) float64 {
		return tokenOverlap(tokens, e.Tokens)
	}); ok {
		return Result{ChannelID: id, Score: score, Method: MethodTokens, Fingerprint: fp}
	}
	if id, score, ok := best(entries, r.th.Similarity, func(e epg.Entry) float64 {
		return similarityAtLeast(fp, e.Key, r.th.Similarity)
	}); ok {
		return Result{ChannelID: id, Score: score, Method: MethodSimilarity, Fingerprint: fp}
	}
	return res
}

// best returns the highest scoring entry at or above threshold. Ties keep the
// earlier entry.
func best(entries []epg.Entry, threshold float64, score func(epg.Entry) float64) (string, float64, bool) {
	bestID, bestScore := "", 0.0
	for _, e := range entries {
		s := score(e)
		if s > bestScore {
			bestID, bestScore = e.ChannelID, s
		}
	}
	if bestID == "" || bestScore < threshold {
		return "", 0, false
	}
	return bestID, bestScore, true
}

// Unmatched describes a service without a feed channel.
type Unmatched struct {
	Ref         string `json:"ref"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// Report summarises ResolveAll.
type Report struct {
	Services  int            `json:"services"`
	Excluded  int            `json:"excluded"`
	Matched   int            `json:"matched"`
	Channels  int            `json:"channels"`
	Methods   map[Method]int `json:"methods"`
	Unmatched []Unmatched    `json:"unmatched"`
}

// ResolveAll resolves services in order and builds a mapping. Services for
// which exclude reports true are skipped. The result depends only on the
// inputs.
func (r *Resolver) ResolveAll(ctx context.Context, services []catalog.Service, idx *epg.Index, exclude func(ref string) bool) (mapping.Mapping, Report) {
	logger := xglog.WithComponentFromContext(ctx, "match")
	m := mapping.Mapping{}
	rep := Report{Services: len(services), Methods: make(map[Method]int, len(Methods))}
	assigned := make(map[string]struct{}, len(services))

	for i, svc := range services {
		if i > 0 && i%progressEvery == 0 {
			if ctx.Err() != nil {
				break
			}
			logger.Info().
				Str(xglog.FieldEvent, "match.progress").
				Int("done", i).
				Int("total", len(services)).
				Msg("resolving services")
		}
		if exclude != nil && exclude(svc.Ref) {
			rep.Excluded++
			continue
		}
		if _, dup := assigned[svc.Ref]; dup {
			continue
		}

		res := r.Resolve(svc, idx)
		if !res.Matched() {
			rep.Unmatched = append(rep.Unmatched, Unmatched{Ref: svc.Ref, Name: svc.Name, Fingerprint: res.Fingerprint})
			continue
		}
		assigned[svc.Ref] = struct{}{}
		m[res.ChannelID] = append(m[res.ChannelID], svc.Ref)
		rep.Matched++
		rep.Methods[res.Method]++
		metrics.IncMatch(string(res.Method))

		logger.Debug().
			Str(xglog.FieldEvent, "match.accepted").
			Str(xglog.FieldServiceRef, svc.Ref).
			Str(xglog.FieldChannelID, res.ChannelID).
			Str(xglog.FieldMethod, string(res.Method)).
			Float64("score", res.Score).
			Msg("service matched")
	}

	rep.Channels = len(m)
	metrics.AddUnmatched(len(rep.Unmatched))
	logger.Info().
		Str(xglog.FieldEvent, "match.done").
		Int("services", rep.Services).
		Int("matched", rep.Matched).
		Int("unmatched", len(rep.Unmatched)).
		Int("channels", rep.Channels).
		Msg("resolution finished")
	return m, rep
}

// String renders a one-line method summary in strategy order.
func (rep Report) String() string {
	var b strings.Builder
	for i, m := range Methods {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(string(m))
		b.WriteString("=")
		b.WriteString(strconv.Itoa(rep.Methods[m]))
	}
	return b.String()
}
