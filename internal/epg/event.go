// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultTitle replaces empty programme titles.
const DefaultTitle = "No Title"

// Event is a programme ready for the receiver's EPG. Start is Unix seconds,
// Duration is seconds; both are positive.
type Event struct {
	Start       int64  `json:"start"`
	Duration    int64  `json:"duration"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// End returns Start+Duration.
func (e Event) End() int64 { return e.Start + e.Duration }

// Valid reports whether the event can be committed.
func (e Event) Valid() bool { return e.Start > 0 && e.Duration > 0 }

// Limits bounds text fields of converted events, in runes.
type Limits struct {
	TitleRunes       int
	DescriptionRunes int
}

// DefaultLimits match what the receiver EPG cache stores comfortably.
var DefaultLimits = Limits{TitleRunes: 240, DescriptionRunes: 2048}

var (
	ErrBadTimestamp = errors.New("invalid xmltv timestamp")
	ErrEmptyRange   = errors.New("programme stop is not after start")
)

// ToEvent converts a programme. Timestamps without an offset are read in loc.
func (p *Programme) ToEvent(loc *time.Location, lim Limits) (Event, error) {
	start, err := ParseTimestamp(p.Start, loc)
	if err != nil {
		return Event{}, err
	}
	stop, err := ParseTimestamp(p.Stop, loc)
	if err != nil {
		return Event{}, err
	}
	if !stop.After(start) || start.Unix() <= 0 {
		return Event{}, ErrEmptyRange
	}

	title := Truncate(p.Title(), lim.TitleRunes)
	if title == "" {
		title = DefaultTitle
	}
	return Event{
		Start:       start.Unix(),
		Duration:    int64(stop.Sub(start) / time.Second),
		Title:       title,
		Description: Truncate(p.Description(), lim.DescriptionRunes),
	}, nil
}

// Truncate trims s and cuts it to at most max runes; max <= 0 disables the cut.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace)
		}
		n++
	}
	return s
}

// ParseTimestamp parses XMLTV "YYYYMMDDhhmm[ss] [+-hhmm]". A missing offset
// means loc (UTC when nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}

	digits := fields[0]
	var layout string
	switch len(digits) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}

	if len(fields) == 1 {
		t, err := time.ParseInLocation(layout, digits, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
		}
		return t, nil
	}

	t, err := time.Parse(layout+" -0700", digits+" "+fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t, nil
}
