// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg reads XMLTV feeds: the channel index used for matching and the
// programme stream used for importing events.
package epg

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/htmlindex"
)

// Compression identifies the container of a feed file.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionBrotli Compression = "brotli"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff detects the compression from the leading bytes and, for brotli which
// has no magic number, the file name.
func Sniff(name string, head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case strings.EqualFold(filepath.Ext(name), ".br"):
		return CompressionBrotli
	default:
		return CompressionNone
	}
}

type feedReader struct {
	io.Reader
	closers []func() error
}

func (f *feedReader) Close() error {
	var first error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open returns the decompressed content of the feed at path.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- feed path comes from configuration
	if err != nil {
		return nil, err
	}
	rc, err := wrap(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rc.closers = append([]func() error{f.Close}, rc.closers...)
	return rc, nil
}

func wrap(name string, r io.Reader) (*feedReader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(4)

	switch Sniff(name, head) {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip feed: %w", err)
		}
		return &feedReader{Reader: gz, closers: []func() error{gz.Close}}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd feed: %w", err)
		}
		return &feedReader{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }}}, nil
	case CompressionBrotli:
		return &feedReader{Reader: brotli.NewReader(br)}, nil
	default:
		return &feedReader{Reader: br}, nil
	}
}

// NewDecoder returns a lenient XML decoder: HTML entities are accepted and the
// declared document charset is honoured.
func NewDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charsetReader
	return dec
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported feed charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
