// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "ABC", 3},
		{"ABC", "", 3},
		{"KITTEN", "SITTING", 3},
		{"POLSAT", "POLSAT", 0},
		{"ŁÓDŹ", "LODZ", 3},
		{"EUROSPORT1", "EUROSPORT2", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, levenshtein(tt.b, tt.a), "symmetry %q vs %q", tt.b, tt.a)
	}
}

func TestSimilarityAtLeast_NoCutoff(t *testing.T) {
	assert.Equal(t, 1.0, similarityAtLeast("", "", 0))
	assert.Equal(t, 1.0, similarityAtLeast("TVN", "TVN", 0))
	assert.InDelta(t, 0.9, similarityAtLeast("EUROSPORT1", "EUROSPORT2", 0), 1e-9)
}

func TestSimilarityAtLeast(t *testing.T) {
	// Length bound 1 - 4/10 is below the cutoff, so the distance is never computed.
	assert.Zero(t, similarityAtLeast("POLSAT", "POLSATNEWS", 0.85))
	assert.InDelta(t, 0.9, similarityAtLeast("EUROSPORT1", "EUROSPORT2", 0.85), 1e-9)
	assert.InDelta(t, 0.6, similarityAtLeast("POLSAT", "POLSATNEWS", 0.6), 1e-9)
	assert.Equal(t, 1.0, similarityAtLeast("", "", 0.85))

	pairs := [][2]string{{"TVN", "TVN24"}, {"KITTEN", "SITTING"}, {"ŁÓDŹ", "LODZ"}, {"A", "ABCDEFGHIJ"}}
	for _, p := range pairs {
		ratio := similarityAtLeast(p[0], p[1], 0)
		got := similarityAtLeast(p[0], p[1], 0.85)
		if ratio >= 0.85 {
			assert.Equal(t, ratio, got, "%q vs %q", p[0], p[1])
		} else {
			assert.Less(t, got, 0.85, "%q vs %q", p[0], p[1])
		}
	}
}

func TestContainmentScore(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		delta int
		want  float64
	}{
		{"plain", "POLSATNEWS", "POLSATNEWS2", 8, 10.0 / 11.0},
		{"symmetric", "POLSATNEWS2", "POLSATNEWS", 8, 10.0 / 11.0},
		{"digit run split at end", "TVP1", "TVP15", 8, 0},
		{"digit run split at start", "24KITCHEN", "124KITCHEN", 8, 0},
		{"digit boundary ok", "TVP1", "TVP1SPORT", 8, 4.0 / 9.0},
		{"later occurrence clean", "A1", "A12A1", 8, 2.0 / 5.0},
		{"no containment", "TVN", "POLSAT", 8, 0},
		{"length guard", "CANAL", "CANALPLUSSPORTPREMIUM", 8, 0},
		{"guard disabled", "CANAL", "CANALPLUSSPORTPREMIUM", 0, 5.0 / 21.0},
		{"empty", "", "TVN", 8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, containmentScore(tt.a, tt.b, tt.delta), 1e-9)
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 0.0, tokenOverlap(nil, []string{"A"}))
	assert.Equal(t, 1.0, tokenOverlap([]string{"CANAL", "PLUS"}, []string{"PLUS", "CANAL"}))
	assert.InDelta(t, 2.0/3.0, tokenOverlap([]string{"CANAL", "PLUS", "SPORT"}, []string{"CANAL", "PLUS"}), 1e-9)
	assert.Equal(t, 0.5, tokenOverlap([]string{"A", "A", "B"}, []string{"A", "C"}), "duplicates count once")
}
