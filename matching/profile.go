package matching

import (
	"fmt"
	"math"
	"sort"
)

// Profile is a record's precomputed, scorable representation under one
// similarity model.
type Profile interface {
	Record() Record
	Norm() float64
}

// Matcher builds profiles for one similarity model and scores pairs of them.
// Implementations are read-only after construction and safe for concurrent use.
type Matcher interface {
	Mode() Mode
	Profile(doc Document) Profile
	// Score returns false when either profile has no usable tokens, or when
	// the profiles were built by a different matcher.
	Score(from, to Profile) (float64, bool)
}

// NewMatcher returns the matcher for mode. An n-gram window below 2 is rejected.
func NewMatcher(mode Mode, w *Weights) (Matcher, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: weights are required", ErrInvalidConfig)
	}
	switch mode.Kind {
	case ModeToken:
		return &tokenMatcher{weights: w}, nil
	case ModeNGram:
		if mode.WindowSize < 2 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, mode.WindowSize)
		}
		return &ngramMatcher{weights: w, window: mode.WindowSize}, nil
	case ModeLevenshtein:
		return &editMatcher{weights: w, mode: mode, similarity: levenshteinSimilarity}, nil
	case ModeDamerauLevenshtein:
		return &editMatcher{weights: w, mode: mode, similarity: damerauLevenshteinSimilarity}, nil
	default:
		return nil, fmt.Errorf("%w: unknown match mode %q", ErrInvalidConfig, mode.Kind)
	}
}

// sortedTokens returns the distinct tokens of counts in lexical order.
func sortedTokens(counts TokenCounts) []string {
	tokens := make([]string, 0, len(counts))
	for t, c := range counts {
		if c > 0 {
			tokens = append(tokens, t)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// profileNorm is sqrt(sum count(t) * weight(t)^2).
func profileNorm(counts TokenCounts, tokens []string, w *Weights) float64 {
	var total float64
	for _, t := range tokens {
		weight := w.Lookup(t)
		total += float64(counts[t]) * weight * weight
	}
	return math.Sqrt(total)
}

// usable reports whether both norms allow a finite score.
func usable(a, b Profile) bool {
	return a.Norm() > 0 && b.Norm() > 0
}

/* Token profile */

type tokenEntry struct {
	token  string
	count  int
	weight float64
}

// TokenProfile is the profile used for exact token matching.
type TokenProfile struct {
	record  Record
	entries []tokenEntry
	index   map[string]int
	norm    float64
}

// Record returns the source record.
func (p *TokenProfile) Record() Record { return p.record }

// Norm returns the profile normalizer.
func (p *TokenProfile) Norm() float64 { return p.norm }

// Score computes the IDF weighted multiset overlap of two token profiles.
func (p *TokenProfile) Score(to *TokenProfile) float64 {
	var common float64
	for _, e := range p.entries {
		i, ok := to.index[e.token]
		if !ok {
			continue
		}
		other := to.entries[i]
		common += float64(min(e.count, other.count)) * e.weight * e.weight
	}
	return common / (p.norm * to.norm)
}

type tokenMatcher struct {
	weights *Weights
}

func (m *tokenMatcher) Mode() Mode { return TokenMode() }

func (m *tokenMatcher) Profile(doc Document) Profile {
	return newTokenProfile(doc, m.weights)
}

func newTokenProfile(doc Document, w *Weights) *TokenProfile {
	tokens := sortedTokens(doc.Tokens)
	p := &TokenProfile{
		record:  doc.Record,
		entries: make([]tokenEntry, len(tokens)),
		index:   make(map[string]int, len(tokens)),
		norm:    profileNorm(doc.Tokens, tokens, w),
	}
	for i, t := range tokens {
		p.entries[i] = tokenEntry{token: t, count: doc.Tokens[t], weight: w.Lookup(t)}
		p.index[t] = i
	}
	return p
}

func (m *tokenMatcher) Score(from, to Profile) (float64, bool) {
	f, ok1 := from.(*TokenProfile)
	t, ok2 := to.(*TokenProfile)
	if !ok1 || !ok2 || !usable(f, t) {
		return 0, false
	}
	return f.Score(t), true
}
