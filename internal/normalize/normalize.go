// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package normalize turns noisy channel names into compact fingerprints used as
// matching keys between receiver services and XMLTV channels.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// "1. ", "12) ", "03 - ", "7: " at the very start of a name.
	enumerationPrefix = regexp.MustCompile(`^\s*\d{1,4}\s*[.):\-]+\s*`)

	symbolWords = strings.NewReplacer(
		"+", " PLUS ",
		"&", " AND ",
	)

	// Letters that carry no combining mark under NFD and need an explicit mapping.
	// Applied after upper-casing, so only upper-case forms (plus caseless ones) are listed.
	letterFolds = strings.NewReplacer(
		"Ł", "L",
		"Ø", "O",
		"Đ", "D",
		"ß", "SS",
		"ẞ", "SS",
		"Æ", "AE",
		"Œ", "OE",
		"Þ", "TH",
		"Ħ", "H",
		"Ŀ", "L",
		"ı", "I",
	)
)

// Normalizer computes fingerprints. It is immutable after construction and safe
// for concurrent use.
type Normalizer struct {
	junk map[string]struct{}
}

// New builds a Normalizer dropping the given junk words. The words themselves are
// folded the same way names are, so "KANAŁ", "kanal" and "(KANAL)" are one entry.
// A multi-word entry is compacted into a single entry ("CANAL PLUS" becomes
// CANALPLUS); it empties a name that compacts to it and leaves the separate
// words alone.
func New(junkWords []string) *Normalizer {
	n := &Normalizer{junk: make(map[string]struct{}, len(junkWords))}
	for _, w := range junkWords {
		if entry := strings.Join(split(fold(strings.ToUpper(w))), ""); entry != "" {
			n.junk[entry] = struct{}{}
		}
	}
	return n
}

// Default returns a Normalizer using DefaultJunkWords.
func Default() *Normalizer {
	return New(DefaultJunkWords())
}

// IsJunk reports whether token (already folded) is in the junk set.
func (n *Normalizer) IsJunk(token string) bool {
	_, ok := n.junk[token]
	return ok
}

// Tokens returns the surviving tokens of raw, in order, before compaction.
func (n *Normalizer) Tokens(raw string) []string {
	if raw == "" {
		return nil
	}
	s := strings.ToUpper(raw)
	s = symbolWords.Replace(s)
	s = fold(s)
	s = enumerationPrefix.ReplaceAllString(s, "")

	parts := split(s)
	out := parts[:0]
	for _, tok := range parts {
		if n.IsJunk(tok) {
			continue
		}
		if utf8.RuneCountInString(tok) == 1 && !isDigits(tok) {
			continue
		}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Fingerprint returns the compact alphanumeric key for raw. Empty or fully junk
// input yields "". Fingerprint(Fingerprint(x)) == Fingerprint(x).
func (n *Normalizer) Fingerprint(raw string) string {
	fp := strings.Join(n.Tokens(raw), "")
	if n.IsJunk(fp) {
		return ""
	}
	return fp
}

// fold maps language-specific letters to their base Latin letters.
func fold(s string) string {
	s = letterFolds.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// split replaces every non-alphanumeric rune with a separator and splits.
func split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
