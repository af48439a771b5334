package matching

import (
	"math"
	"strings"
	"testing"
)

func testDoc(id, name string) Document {
	return Document{Record: Record{ID: id, Name: name}, Tokens: CountTokens(strings.Fields(name))}
}

func testGroupDoc(id, name, group string) Document {
	d := testDoc(id, name)
	d.Record.Group = group
	return d
}

func mustWeights(t *testing.T, docs ...Document) *Weights {
	t.Helper()
	counts := make([]TokenCounts, len(docs))
	for i, d := range docs {
		counts[i] = d.Tokens
	}
	w, err := NewWeights(counts)
	if err != nil {
		t.Fatalf("NewWeights: %v", err)
	}
	return w
}

func mustMatcher(t *testing.T, mode Mode, w *Weights) Matcher {
	t.Helper()
	m, err := NewMatcher(mode, w)
	if err != nil {
		t.Fatalf("NewMatcher(%s): %v", mode, err)
	}
	return m
}

func mustScore(t *testing.T, m Matcher, from, to Document) float64 {
	t.Helper()
	score, ok := m.Score(m.Profile(from), m.Profile(to))
	if !ok {
		t.Fatalf("Score(%q, %q) reported unusable profiles", from.Record.Name, to.Record.Name)
	}
	return score
}

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

var allModes = []Mode{TokenMode(), NGramMode(2), NGramMode(3), LevenshteinMode(), DamerauLevenshteinMode()}
