// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mapping holds the feed channel to receiver service assignment and
// its JSON file.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/e2epg/internal/log"
)

// ErrCorrupt is returned by Load when the file is not a valid mapping.
var ErrCorrupt = errors.New("mapping file corrupt")

// Mapping assigns feed channel IDs to service refs. A ref belongs to at most
// one channel and appears once within it.
type Mapping map[string][]string

// Add appends ref under channelID. It reports false when ref is already
// assigned anywhere.
func (m Mapping) Add(channelID, ref string) bool {
	if _, taken := m.ChannelOf(ref); taken {
		return false
	}
	m[channelID] = append(m[channelID], ref)
	return true
}

// ChannelOf returns the channel ref is assigned to.
func (m Mapping) ChannelOf(ref string) (string, bool) {
	for id, refs := range m {
		if slices.Contains(refs, ref) {
			return id, true
		}
	}
	return "", false
}

// RefCount is the number of assigned refs.
func (m Mapping) RefCount() int {
	n := 0
	for _, refs := range m {
		n += len(refs)
	}
	return n
}

// ChannelIDs returns the keys sorted.
func (m Mapping) ChannelIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Without returns a copy with every ref for which drop reports true removed.
// Channels left empty are omitted.
func (m Mapping) Without(drop func(ref string) bool) Mapping {
	out := make(Mapping, len(m))
	for id, refs := range m {
		var kept []string
		for _, r := range refs {
			if !drop(r) {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			out[id] = kept
		}
	}
	return out
}

// Dedupe returns a copy in which every ref appears once. A ref listed under
// several channels stays with the channel ID that sorts first. Channels left
// empty are omitted. The second result counts the dropped entries.
func (m Mapping) Dedupe() (Mapping, int) {
	out := make(Mapping, len(m))
	seen := make(map[string]struct{}, m.RefCount())
	dropped := 0
	for _, id := range m.ChannelIDs() {
		var kept []string
		for _, r := range m[id] {
			if _, dup := seen[r]; dup {
				dropped++
				continue
			}
			seen[r] = struct{}{}
			kept = append(kept, r)
		}
		if len(kept) > 0 {
			out[id] = kept
		}
	}
	return out, dropped
}

// Store persists a Mapping as an indented JSON object with sorted keys.
type Store struct {
	path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load reads the file. A missing or empty file is an empty mapping. A corrupt
// file yields an empty mapping and ErrCorrupt. Refs assigned more than once
// are reduced with Dedupe.
func (s *Store) Load() (Mapping, error) {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Mapping{}, nil
		}
		return Mapping{}, fmt.Errorf("read mapping: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Mapping{}, nil
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return Mapping{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	m, dropped := m.Dedupe()
	if dropped > 0 {
		logger := xglog.WithComponent("mapping")
		logger.Warn().
			Str(xglog.FieldEvent, "mapping.duplicate_refs").
			Str(xglog.FieldPath, s.path).
			Int("dropped", dropped).
			Msg("mapping lists refs more than once; keeping the first channel")
	}
	return m, nil
}

// Save writes m atomically. encoding/json sorts map keys.
func (s *Store) Save(m Mapping) error {
	if m == nil {
		m = Mapping{}
	}
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create mapping dir: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}
	return nil
}
