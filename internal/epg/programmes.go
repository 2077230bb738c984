// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// ErrStop may be returned by a ProgrammeFunc to end streaming without error.
var ErrStop = errors.New("stop streaming")

// ProgrammeFunc receives each decoded programme of a wanted channel.
type ProgrammeFunc func(p *Programme) error

// StreamStats summarises one pass over the programme section.
type StreamStats struct {
	Seen      int // <programme> elements encountered
	Decoded   int // elements of wanted channels
	Malformed int // wanted elements that failed to decode
}

// StreamProgrammes walks every <programme> of the document. Elements whose
// channel is not wanted are skipped without decoding. The returned error is
// the first read error, ctx cancellation, or a non-ErrStop callback error;
// programmes delivered before it stay delivered.
func StreamProgrammes(ctx context.Context, r io.Reader, wanted func(channelID string) bool, fn ProgrammeFunc) (StreamStats, error) {
	var stats StreamStats
	dec := NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "programme" {
			continue
		}

		stats.Seen++
		if stats.Seen%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		if !wanted(strings.TrimSpace(attr(se, "channel"))) {
			if err := dec.Skip(); err != nil {
				return stats, err
			}
			continue
		}

		var p Programme
		if err := dec.DecodeElement(&p, &se); err != nil {
			var syn *xml.SyntaxError
			if errors.As(err, &syn) {
				return stats, err
			}
			stats.Malformed++
			continue
		}
		p.Channel = strings.TrimSpace(p.Channel)
		stats.Decoded++

		if err := fn(&p); err != nil {
			if errors.Is(err, ErrStop) {
				return stats, nil
			}
			return stats, err
		}
	}
}
