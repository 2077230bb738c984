// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tv SYSTEM "xmltv.dtd">
<tv generator-info-name="test">
  <channel id="TVP1.pl">
    <display-name lang="pl">TVP 1 HD</display-name>
    <display-name lang="pl">TVP1</display-name>
  </channel>
  <channel id="Polsat.pl">
    <display-name>Polsat</display-name>
  </channel>
  <channel id="TVN.pl">
    <display-name>TVN</display-name>
  </channel>
  <channel id="Canal+Sport2.pl">
    <display-name>Canal+ Sport 2</display-name>
  </channel>
  <channel id="HD.pl">
    <display-name>HD</display-name>
  </channel>
  <programme start="20250101120000 +0100" stop="20250101130000 +0100" channel="TVN.pl">
    <title lang="pl">Fakty</title>
    <desc lang="pl">Wiadomości dnia &amp; pogoda</desc>
  </programme>
  <programme start="20250101130000 +0100" stop="20250101130000 +0100" channel="TVN.pl">
    <title>Zero length</title>
  </programme>
  <programme start="20250101120000 +0100" stop="20250101140000 +0100" channel="Polsat.pl">
    <title>Film&nbsp;wieczorny</title>
  </programme>
  <programme start="20250101120000 +0100" stop="20250101140000 +0100" channel="Unknown.pl">
    <title>Skipped</title>
  </programme>
  <channel id="Late.pl">
    <display-name>Late Channel</display-name>
  </channel>
</tv>
`

func writeFeed(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
