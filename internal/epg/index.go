// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ManuGH/e2epg/internal/normalize"
)

// DefaultRegionalSuffixes are stripped from channel IDs before fingerprinting.
var DefaultRegionalSuffixes = []string{".pl"}

// IndexOptions tunes BuildIndex.
type IndexOptions struct {
	RegionalSuffixes []string
}

// Entry is one fingerprint key of the index.
type Entry struct {
	Key       string
	Tokens    []string
	ChannelID string
}

// CanonicalChannel is a feed channel with its fingerprint aliases in first-seen order.
type CanonicalChannel struct {
	ID          string
	DisplayName string
	Aliases     []string
}

// Index maps fingerprints to feed channel IDs. The first channel to claim a
// fingerprint keeps it. Iteration follows insertion order.
type Index struct {
	entries  []Entry
	byKey    map[string]int
	channels []CanonicalChannel
	byID     map[string]int
	err      error
}

func newIndex() *Index {
	return &Index{byKey: make(map[string]int), byID: make(map[string]int)}
}

// Len is the number of fingerprint keys.
func (idx *Index) Len() int { return len(idx.entries) }

// Entries returns the keys in insertion order. The slice must not be modified.
func (idx *Index) Entries() []Entry { return idx.entries }

// Lookup returns the channel owning fingerprint fp.
func (idx *Index) Lookup(fp string) (string, bool) {
	i, ok := idx.byKey[fp]
	if !ok {
		return "", false
	}
	return idx.entries[i].ChannelID, true
}

// Channels returns every channel seen, in document order.
func (idx *Index) Channels() []CanonicalChannel { return idx.channels }

// HasChannel reports whether id appeared in the feed.
func (idx *Index) HasChannel(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// DisplayNames maps channel IDs to their first display name.
func (idx *Index) DisplayNames() map[string]string {
	out := make(map[string]string, len(idx.channels))
	for _, ch := range idx.channels {
		out[ch.ID] = ch.DisplayName
	}
	return out
}

// Err is the error that ended indexing early, if any. Entries indexed before
// the error stay usable.
func (idx *Index) Err() error { return idx.err }

func (idx *Index) add(n *normalize.Normalizer, source, channelID string) {
	tokens := n.Tokens(source)
	fp := strings.Join(tokens, "")
	if n.IsJunk(fp) || utf8.RuneCountInString(fp) < 2 {
		return
	}

	ci := idx.byID[channelID]
	ch := &idx.channels[ci]
	if !slices.Contains(ch.Aliases, fp) {
		ch.Aliases = append(ch.Aliases, fp)
	}

	if _, taken := idx.byKey[fp]; taken {
		return
	}
	idx.byKey[fp] = len(idx.entries)
	idx.entries = append(idx.entries, Entry{Key: fp, Tokens: tokens, ChannelID: channelID})
}

func (idx *Index) addChannel(n *normalize.Normalizer, c Channel, suffixes []string) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return
	}
	if _, seen := idx.byID[id]; !seen {
		display := ""
		for _, dn := range c.DisplayNames {
			if v := strings.TrimSpace(dn.Value); v != "" {
				display = v
				break
			}
		}
		idx.byID[id] = len(idx.channels)
		idx.channels = append(idx.channels, CanonicalChannel{ID: id, DisplayName: display})
	}

	for _, dn := range c.DisplayNames {
		if v := strings.TrimSpace(dn.Value); v != "" {
			idx.add(n, v, id)
		}
	}
	idx.add(n, stripSuffix(id, suffixes), id)
}

// BuildIndex reads <channel> elements until the first <programme>. It never
// returns nil; a read or syntax error is recorded in Index.Err.
func BuildIndex(ctx context.Context, r io.Reader, n *normalize.Normalizer, opts IndexOptions) *Index {
	idx := newIndex()
	suffixes := opts.RegionalSuffixes
	if suffixes == nil {
		suffixes = DefaultRegionalSuffixes
	}

	dec := NewDecoder(r)
	for count := 0; ; count++ {
		if count%512 == 0 {
			if err := ctx.Err(); err != nil {
				idx.err = err
				return idx
			}
		}
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				idx.err = err
			}
			return idx
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "channel":
			var c Channel
			if err := dec.DecodeElement(&c, &se); err != nil {
				idx.err = err
				return idx
			}
			idx.addChannel(n, c, suffixes)
		case "programme":
			return idx
		}
	}
}

// LoadIndex opens the feed at path and indexes it. An unreadable file yields
// an empty index with Err set.
func LoadIndex(ctx context.Context, path string, n *normalize.Normalizer, opts IndexOptions) *Index {
	rc, err := Open(path)
	if err != nil {
		idx := newIndex()
		idx.err = err
		return idx
	}
	defer func() { _ = rc.Close() }()
	return BuildIndex(ctx, rc, n, opts)
}

func stripSuffix(id string, suffixes []string) string {
	lower := strings.ToLower(id)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(lower, strings.ToLower(s)) {
			return id[:len(id)-len(s)]
		}
	}
	return id
}
