// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/e2epg/internal/validate"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testLoader(path string, env map[string]string) *Loader {
	l := NewLoader(path, "v-test")
	l.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	l.environ = func() []string {
		out := make([]string, 0, len(env))
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return out
	}
	return l
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
dataDir: `+dir+`
logLevel: debug
feed:
  preset: epg-ovh-pl
  timeout: 30s
  retries: 5
mapping:
  refresh: true
  aliases:
    "Polsat.pl": ["Polsat HD", "Polsat FHD"]
import:
  window: 48h
  fallback:
    "TVN HD": "1:0:19:3DCD:640:13E:820000:0:0:0:"
`)
	cfg, err := testLoader(path, map[string]string{
		"E2EPG_LOG_LEVEL":     "warn",
		"E2EPG_FEED_RETRIES":  "2",
		"E2EPG_OWI_BASE":      "http://192.168.1.20",
		"E2EPG_FEED_SUFFIXES": ".pl, .uk",
		"E2EPG_STORE_PATH":    "",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Feed.Retries)
	assert.Equal(t, 30*time.Second, cfg.Feed.Timeout.D())
	assert.Equal(t, "epg-ovh-pl", cfg.Feed.Preset)
	assert.Equal(t, []string{".pl", ".uk"}, cfg.Feed.RegionalSuffixes)
	assert.True(t, cfg.Mapping.Refresh)
	assert.Equal(t, []string{"Polsat HD", "Polsat FHD"}, cfg.Mapping.Aliases["Polsat.pl"])
	assert.Equal(t, 48*time.Hour, cfg.Import.Window.D())
	assert.Len(t, cfg.Import.Fallback, 1)
	assert.Equal(t, "http://192.168.1.20", cfg.OpenWebIF.BaseURL)
	assert.Equal(t, "events.db", cfg.Store.Path)
	assert.Equal(t, 5000, cfg.Import.BatchSize)
	assert.Equal(t, "v-test", cfg.Version)
	assert.Equal(t, filepath.Join(dir, "events.db"), cfg.InDataDir(cfg.Store.Path))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "feed:\n  presett: epg-ovh-pl\n")
	_, err := testLoader(path, nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logLevel: info\n---\nlogLevel: debug\n")
	_, err := testLoader(path, nil).Load()
	require.Error(t, err)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := testLoader(path, nil).Load()
	require.Error(t, err)
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := testLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Feed, cfg.Feed)
}

func TestLoadBadEnvValue(t *testing.T) {
	_, err := testLoader("", map[string]string{"E2EPG_FEED_RETRIES": "many"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E2EPG_FEED_RETRIES")
}

func TestDurationAcceptsSeconds(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "import:\n  timeout: 900\n")
	cfg, err := testLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Import.Timeout.D())

	path = writeConfig(t, t.TempDir(), "import:\n  timeout: soon\n")
	_, err = testLoader(path, nil).Load()
	require.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Cache.Backend = "redis"
	cfg.Feed.Preset = "unknown"
	cfg.Matching.Similarity = 1.2
	cfg.Import.BatchSize = 0
	cfg.API.ListenAddr = "nowhere"
	cfg.Feed.Timezone = "Mars/Olympus"

	err := Validate(cfg)
	require.Error(t, err)
	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))

	fields := map[string]bool{}
	for _, e := range ve.Errors() {
		fields[e.Field] = true
	}
	for _, f := range []string{"logLevel", "cache.redis.addr", "feed.preset", "matching.similarity", "import.batchSize", "api.listenAddr", "feed.timezone"} {
		assert.True(t, fields[f], f)
	}
}

func TestManagerSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "config.yaml")

	cfg := Default()
	cfg.DataDir = dir
	cfg.Feed.URL = "https://example.com/guide.xml.gz"
	cfg.Mapping.Aliases = map[string][]string{"TVN.pl": {"TVN"}}
	cfg.Import.Fallback = map[string]string{"TVP 1 HD": "1:0:19:3ABD:13F0:13E:820000:0:0:0:"}
	cfg.Version = "v-test"
	require.NoError(t, NewManager(path).Save(cfg))

	loaded, err := testLoader(path, nil).Load()
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logLevel: info\n")
	loader := testLoader(path, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	updates := make(chan Config, 1)
	h.Subscribe(updates)

	writeConfig(t, dir, "logLevel: debug\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "debug", h.Get().LogLevel)
	assert.Equal(t, "debug", (<-updates).LogLevel)

	writeConfig(t, dir, "logLevel: [broken\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "debug", h.Get().LogLevel)
}

func TestHolderWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logLevel: info\n")
	loader := testLoader(path, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	h.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	writeConfig(t, dir, "logLevel: error\n")
	require.Eventually(t, func() bool { return h.Get().LogLevel == "error" }, 5*time.Second, 20*time.Millisecond)
}

func TestEnvKeysArePrefixed(t *testing.T) {
	for _, k := range EnvKeys() {
		assert.Regexp(t, `^E2EPG_[A-Z_]+$`, k)
	}
	l := testLoader("", nil)
	assert.Equal(t, []string{"E2EPG_TYPO"}, l.unknownEnv([]string{"E2EPG_TYPO=1", "E2EPG_LOG_LEVEL=info", "HOME=/root"}))
}
