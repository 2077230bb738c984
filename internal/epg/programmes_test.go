// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wantSet(ids ...string) func(string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

func TestStreamProgrammes_FiltersChannels(t *testing.T) {
	var got []Programme
	stats, err := StreamProgrammes(context.Background(), strings.NewReader(sampleFeed), wantSet("TVN.pl", "Polsat.pl"),
		func(p *Programme) error {
			got = append(got, *p)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Seen)
	assert.Equal(t, 3, stats.Decoded)
	require.Len(t, got, 3)
	assert.Equal(t, "Fakty", got[0].Title())
	assert.Equal(t, "Wiadomości dnia & pogoda", got[0].Description())
	assert.Equal(t, "Film\u00a0wieczorny", got[2].Title())
}

func TestStreamProgrammes_StopAndCallbackError(t *testing.T) {
	calls := 0
	_, err := StreamProgrammes(context.Background(), strings.NewReader(sampleFeed), wantSet("TVN.pl"),
		func(*Programme) error {
			calls++
			return ErrStop
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err = StreamProgrammes(context.Background(), strings.NewReader(sampleFeed), wantSet("TVN.pl"),
		func(*Programme) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStreamProgrammes_TruncatedKeepsDelivered(t *testing.T) {
	cut := sampleFeed[:strings.Index(sampleFeed, `<programme start="20250101120000 +0100" stop="20250101140000 +0100" channel="Polsat.pl">`)+40]
	var got int
	_, err := StreamProgrammes(context.Background(), strings.NewReader(cut), wantSet("TVN.pl", "Polsat.pl"),
		func(*Programme) error {
			got++
			return nil
		})
	assert.Error(t, err)
	assert.Equal(t, 2, got)
}

func TestProgrammeToEvent(t *testing.T) {
	p := Programme{Start: "20250101120000 +0100", Stop: "20250101130000 +0100", Titles: []LangText{{Value: "  Fakty "}}}
	ev, err := p.ToEvent(time.UTC, DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC).Unix(), ev.Start)
	assert.Equal(t, int64(3600), ev.Duration)
	assert.Equal(t, "Fakty", ev.Title)
	assert.True(t, ev.Valid())
	assert.Equal(t, ev.Start+3600, ev.End())
}

func TestProgrammeToEvent_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		start string
		stop  string
		want  error
	}{
		{"equal", "20250101120000 +0000", "20250101120000 +0000", ErrEmptyRange},
		{"reversed", "20250101130000 +0000", "20250101120000 +0000", ErrEmptyRange},
		{"garbage start", "tomorrow", "20250101120000 +0000", ErrBadTimestamp},
		{"missing stop", "20250101120000 +0000", "", ErrBadTimestamp},
		{"bad offset", "20250101120000 +99xx", "20250101130000 +0000", ErrBadTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Programme{Start: tt.start, Stop: tt.stop}
			_, err := p.ToEvent(time.UTC, DefaultLimits)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProgrammeToEvent_DefaultsAndLimits(t *testing.T) {
	p := Programme{
		Start:  "20250101120000 +0000",
		Stop:   "20250101120500 +0000",
		Titles: []LangText{{Value: "   "}},
		Descs:  []LangText{{Value: strings.Repeat("ż", 30)}},
	}
	ev, err := p.ToEvent(time.UTC, Limits{TitleRunes: 5, DescriptionRunes: 10})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, ev.Title)
	assert.Equal(t, strings.Repeat("ż", 10), ev.Description)
}

func TestParseTimestamp(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	ts, err := ParseTimestamp("20250701120000", warsaw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC).Unix(), ts.Unix())

	ts, err = ParseTimestamp("202507011200 -0200", warsaw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC).Unix(), ts.Unix())

	ts, err = ParseTimestamp("20250701120000", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())

	_, err = ParseTimestamp("2025", nil)
	assert.ErrorIs(t, err, ErrBadTimestamp)
	_, err = ParseTimestamp("20251301120000 +0000", nil)
	assert.ErrorIs(t, err, ErrBadTimestamp)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("  abc  ", 0))
	assert.Equal(t, "ab", Truncate("ab cd", 3))
	assert.Equal(t, "Łódź", Truncate("Łódź TV", 4))
	assert.Equal(t, "short", Truncate("short", 240))
}
