// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// levenshtein is the rune-wise edit distance using two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// similarityAtLeast is 1 - distance/longer length, in [0, 1], or 0 without
// computing the distance when the length difference alone keeps the pair
// below cutoff.
func similarityAtLeast(a, b string, cutoff float64) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	if 1-float64(max(la-lb, lb-la))/float64(longest) < cutoff {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// containmentScore is shorter/longer when one fingerprint contains the other
// at a position that does not split a digit run, and 0 otherwise. Pairs whose
// length difference exceeds maxDelta (when positive) score 0.
func containmentScore(a, b string, maxDelta int) float64 {
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	ls, ll := utf8.RuneCountInString(short), utf8.RuneCountInString(long)
	if ls == 0 {
		return 0
	}
	if maxDelta > 0 && ll-ls > maxDelta {
		return 0
	}

	for from := 0; from <= len(long)-len(short); {
		i := strings.Index(long[from:], short)
		if i < 0 {
			return 0
		}
		start := from + i
		if !splitsDigitRun(long, short, start) {
			return float64(ls) / float64(ll)
		}
		_, size := utf8.DecodeRuneInString(long[start:])
		from = start + size
	}
	return 0
}

// splitsDigitRun reports whether short, found at byte offset start of long,
// begins or ends in the middle of a run of digits.
func splitsDigitRun(long, short string, start int) bool {
	end := start + len(short)

	first, _ := utf8.DecodeRuneInString(short)
	if start > 0 && unicode.IsDigit(first) {
		before, _ := utf8.DecodeLastRuneInString(long[:start])
		if unicode.IsDigit(before) {
			return true
		}
	}

	last, _ := utf8.DecodeLastRuneInString(short)
	if end < len(long) && unicode.IsDigit(last) {
		after, _ := utf8.DecodeRuneInString(long[end:])
		if unicode.IsDigit(after) {
			return true
		}
	}
	return false
}

// tokenOverlap is |A∩B| / max(|A|, |B|) over distinct tokens.
func tokenOverlap(a, b []string) float64 {
	setA := distinct(a)
	setB := distinct(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(setA), len(setB)))
}

func distinct(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
