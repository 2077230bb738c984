// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/e2epg/internal/jobs"
	"github.com/ManuGH/e2epg/internal/mapping"
	"github.com/ManuGH/e2epg/internal/version"
)

const testBouquet = `#NAME Test
#SERVICE 4097:0:1:1:0:0:0:0:0:0:http%3a//example.com/tvp1:TVP 1 HD
#DESCRIPTION TVP 1 HD
#SERVICE 5002:0:1:2:0:0:0:0:0:0:http%3a//example.com/polsat:Polsat
#DESCRIPTION Polsat HD [PL]
#SERVICE 4097:0:1:3:0:0:0:0:0:0:http%3a//example.com/unknown:Unknown
#DESCRIPTION Kanal Nieznany
`

// feedAround renders a small feed whose programmes start after now.
func feedAround(now time.Time) string {
	ts := func(t time.Time) string { return t.UTC().Format("20060102150405 -0700") }
	base := now.Truncate(time.Hour).Add(time.Hour)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="TVP1.pl"><display-name>TVP 1</display-name></channel>
  <channel id="Polsat.pl"><display-name>Polsat</display-name></channel>
  <programme start="%[1]s" stop="%[2]s" channel="TVP1.pl"><title>Teleexpress</title></programme>
  <programme start="%[2]s" stop="%[3]s" channel="TVP1.pl"><title>Wiadomosci</title></programme>
  <programme start="%[1]s" stop="%[2]s" channel="Polsat.pl"><title>Wydarzenia</title></programme>
</tv>
`, ts(base), ts(base.Add(time.Hour)), ts(base.Add(2*time.Hour)))
}

type fixture struct {
	dir    string
	config string
	feed   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	feed := feedAround(time.Now())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)

	bouquets := filepath.Join(dir, "enigma2")
	require.NoError(t, os.MkdirAll(bouquets, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bouquets, "userbouquet.test.tv"), []byte(testBouquet), 0o600))

	cfg := fmt.Sprintf(`dataDir: %s
logLevel: warn
bouquets:
  dir: %s
cache:
  backend: none
feed:
  url: %s/epg.xml
  retries: 1
  minBytes: 1
import:
  fallback: {}
`, dir, bouquets, srv.URL)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	feedPath := filepath.Join(dir, "feed.xml")
	require.NoError(t, os.WriteFile(feedPath, []byte(feed), 0o600))
	return &fixture{dir: dir, config: path, feed: feedPath}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "e2epg "+version.Version)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log-level")
}

func TestFingerprint(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "--config", f.config, "fingerprint", "TVP 1 HD", "Polsat HD [PL]", "HD TV")
	require.NoError(t, err)
	assert.Regexp(t, `TVP 1 HD\s+TVP1\n`, out)
	assert.Regexp(t, `Polsat HD \[PL\]\s+POLSAT\n`, out)
	assert.Regexp(t, `HD TV\s+-\n`, out)
}

func TestChannels(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "--config", f.config, "channels", f.feed)
	require.NoError(t, err)
	assert.Contains(t, out, "TVP1.pl")
	assert.Contains(t, out, "Polsat.pl")
	assert.Contains(t, out, "2 channels")
}

func TestChannelsMissingFeed(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "--config", f.config, "channels", filepath.Join(f.dir, "missing.xml"))
	assert.Error(t, err)
}

func TestMapThenImport(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "--config", f.config, "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mapping")

	out, err := execute(t, "--config", f.config, "map")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "Kanal Nieznany")

	m, err := mapping.NewStore(filepath.Join(f.dir, "iptv_mapping.json")).Load()
	require.NoError(t, err)
	assert.Contains(t, m, "TVP1.pl")
	assert.Contains(t, m, "Polsat.pl")

	out, err = execute(t, "--config", f.config, "import", "--json")
	require.NoError(t, err)
	var run jobs.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.Equal(t, jobs.StateSucceeded, run.State)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.Events)
}

func TestFailedRunReturnsError(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "--config", f.config, "import", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import run failed")
	var run jobs.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.Equal(t, jobs.StateFailed, run.State)
	assert.Contains(t, run.Error, "no mapping")

	out, err = execute(t, "--config", f.config, "import")
	require.Error(t, err)
	assert.Contains(t, out, "failed")
}

func TestStorePruneAndVerify(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "--config", f.config, "store", "prune", "--before", "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 events")

	out, err = execute(t, "--config", f.config, "store", "verify", "--mode", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "ok (full)")

	_, err = execute(t, "--config", f.config, "store", "verify", "--mode", "deep")
	assert.Error(t, err)
}

func TestStoreVerifyMissingStore(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "--config", f.config, "store", "verify")
	assert.Error(t, err)
}

func TestParseCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", now.Add(-24 * time.Hour), false},
		{"2h", now.Add(-2 * time.Hour), false},
		{"2025-05-01T08:00:00Z", time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC), false},
		{"2025-05-01", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"-1h", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCutoff(tt.in, now, 24*time.Hour)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "--config", f.config, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := filepath.Join(f.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dataDir: "+f.dir+"\nfeed:\n  retries: 0\n"), 0o600))
	_, err = execute(t, "--config", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.retries")
}

func TestConfigInitAndDump(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	t.Setenv("E2EPG_OWI_PASS", "hunter2")
	out, err = execute(t, "--config", path, "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "preset: epgshare-pl")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, redacted)
}
