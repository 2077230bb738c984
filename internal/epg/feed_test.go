// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func compress(t *testing.T, kind Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch kind {
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionZstd:
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionBrotli:
		w := brotli.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.Write(data)
	}
	return buf.Bytes()
}

func TestOpen_Compression(t *testing.T) {
	tests := []struct {
		name string
		file string
		kind Compression
	}{
		{"plain", "feed.xml", CompressionNone},
		{"gzip", "feed.xml.gz", CompressionGzip},
		{"gzip without extension", "feed.xml", CompressionGzip},
		{"zstd", "feed.xml.zst", CompressionZstd},
		{"brotli", "feed.xml.br", CompressionBrotli},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFeed(t, tt.file, compress(t, tt.kind, []byte(sampleFeed)))

			rc, err := Open(path)
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, sampleFeed, string(got))
		})
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open("/nonexistent/feed.xml")
	assert.Error(t, err)
}

func TestOpen_CorruptGzip(t *testing.T) {
	path := writeFeed(t, "feed.xml.gz", []byte{0x1f, 0x8b, 0x00, 0x01})
	_, err := Open(path)
	assert.Error(t, err)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, CompressionGzip, Sniff("x.xml", []byte{0x1f, 0x8b, 8}))
	assert.Equal(t, CompressionZstd, Sniff("x", []byte{0x28, 0xb5, 0x2f, 0xfd}))
	assert.Equal(t, CompressionBrotli, Sniff("x.XML.BR", []byte("<?xm")))
	assert.Equal(t, CompressionNone, Sniff("x.xml", []byte("<?xm")))
	assert.Equal(t, CompressionNone, Sniff("x.xml", nil))
}

func TestNewDecoder_HonoursCharset(t *testing.T) {
	doc := `<?xml version="1.0" encoding="ISO-8859-2"?><tv><channel id="lodz"><display-name>Łódź</display-name></channel></tv>`
	encoded, err := charmap.ISO8859_2.NewEncoder().String(doc)
	require.NoError(t, err)

	dec := NewDecoder(strings.NewReader(encoded))
	var c Channel
	for {
		tok, err := dec.Token()
		require.NoError(t, err)
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "channel" {
			require.NoError(t, dec.DecodeElement(&c, &se))
			break
		}
	}
	require.Len(t, c.DisplayNames, 1)
	assert.Equal(t, "Łódź", c.DisplayNames[0].Value)
}

func TestNewDecoder_UnknownCharset(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`<?xml version="1.0" encoding="x-klingon"?><tv/>`))
	_, err := dec.Token()
	assert.Error(t, err)
}
