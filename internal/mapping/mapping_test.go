// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mapping

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_AddNeverDuplicates(t *testing.T) {
	m := Mapping{}
	assert.True(t, m.Add("TVN.pl", "ref1"))
	assert.True(t, m.Add("TVN.pl", "ref2"))
	assert.False(t, m.Add("TVN.pl", "ref1"))
	assert.False(t, m.Add("Polsat.pl", "ref2"), "a ref belongs to one channel")

	assert.Equal(t, Mapping{"TVN.pl": {"ref1", "ref2"}}, m)
	assert.Equal(t, 2, m.RefCount())

	id, ok := m.ChannelOf("ref2")
	require.True(t, ok)
	assert.Equal(t, "TVN.pl", id)
}

func TestMapping_Without(t *testing.T) {
	m := Mapping{"a": {"r1", "r2"}, "b": {"r3"}}
	got := m.Without(func(ref string) bool { return ref == "r2" || ref == "r3" })
	assert.Equal(t, Mapping{"a": {"r1"}}, got)
	assert.Len(t, m["a"], 2, "original untouched")
	assert.Equal(t, []string{"a", "b"}, m.ChannelIDs())
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "iptv_mapping.json")
	store := NewStore(path)

	want := Mapping{
		"TVP1.pl":   {"4097:0:1:1:0:0:0:0:0:0:http%3a//h/1:TVP 1", "5002:0:1:1:0:0:0:0:0:0:http%3a//h/2:TVP 1 HD"},
		"Polsat.pl": {"4097:0:1:2:0:0:0:0:0:0:http%3a//h/3:Polsat"},
		"Łódź.pl":   {"r\"quoted\""},
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Less(t, strings.Index(text, "Polsat.pl"), strings.Index(text, "TVP1.pl"), "keys sorted")
	assert.True(t, strings.HasSuffix(text, "}\n"))
}

func TestStore_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	m, err := NewStore(filepath.Join(dir, "missing.json")).Load()
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.NotNil(t, m)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	m, err = NewStore(empty).Load()
	require.NoError(t, err)
	assert.Empty(t, m)

	null := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(null, []byte("null"), 0o600))
	m, err = NewStore(null).Load()
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": "not-a-list"}`), 0o600))

	m, err := NewStore(path).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Empty(t, m)
}

func TestMapping_Dedupe(t *testing.T) {
	m := Mapping{
		"TVP1.pl":   {"ref:a", "ref:c"},
		"Polsat.pl": {"ref:a", "ref:b", "ref:b"},
		"TVN.pl":    {"ref:b"},
	}
	got, dropped := m.Dedupe()
	assert.Equal(t, 3, dropped)
	want := Mapping{"Polsat.pl": {"ref:a", "ref:b"}, "TVP1.pl": {"ref:c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadKeepsOneChannelPerRef(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"TVP1.pl":["ref:a"],"Polsat.pl":["ref:a"]}`), 0o600))

	m, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Mapping{"Polsat.pl": {"ref:a"}}, m)
	assert.Equal(t, 1, m.RefCount())
}

func TestStore_SaveNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, NewStore(path).Save(nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(raw))
}
