package matching

import (
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// levenshteinSimilarity is 1 - distance/maxLen over runes; 1 for two empty strings.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return normalizeDistance(edlib.LevenshteinDistance(a, b), a, b)
}

// damerauLevenshteinSimilarity is the unrestricted Damerau-Levenshtein
// counterpart of levenshteinSimilarity.
func damerauLevenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return normalizeDistance(edlib.DamerauLevenshteinDistance(a, b), a, b)
}

func normalizeDistance(distance int, a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(n)
}

type editToken struct {
	token  string
	weight float64
}

// EditDistanceProfile is shared by the Levenshtein and Damerau-Levenshtein
// models; only the string similarity used while scoring differs.
type EditDistanceProfile struct {
	record Record
	counts TokenCounts
	tokens []editToken
	norm   float64
}

// Record returns the source record.
func (p *EditDistanceProfile) Record() Record { return p.record }

// Norm returns the profile normalizer.
func (p *EditDistanceProfile) Norm() float64 { return p.norm }

// Score combines per token pair similarities, scaled by both weights, with
// greedyAssign.
func (p *EditDistanceProfile) Score(to *EditDistanceProfile, similarity func(a, b string) float64) float64 {
	pairs := make([]tokenPair, 0, len(p.tokens)*len(to.tokens))
	for _, f := range p.tokens {
		for _, t := range to.tokens {
			pairs = append(pairs, tokenPair{
				score: similarity(f.token, t.token) * f.weight * t.weight,
				from:  f.token,
				to:    t.token,
			})
		}
	}
	return greedyAssign(pairs, p.counts, to.counts) / (p.norm * to.norm)
}

type editMatcher struct {
	weights    *Weights
	mode       Mode
	similarity func(a, b string) float64
}

func (m *editMatcher) Mode() Mode { return m.mode }

func (m *editMatcher) Profile(doc Document) Profile {
	tokens := sortedTokens(doc.Tokens)
	p := &EditDistanceProfile{
		record: doc.Record,
		counts: doc.Tokens,
		tokens: make([]editToken, len(tokens)),
		norm:   profileNorm(doc.Tokens, tokens, m.weights),
	}
	for i, t := range tokens {
		p.tokens[i] = editToken{token: t, weight: m.weights.Lookup(t)}
	}
	return p
}

func (m *editMatcher) Score(from, to Profile) (float64, bool) {
	f, ok1 := from.(*EditDistanceProfile)
	t, ok2 := to.(*EditDistanceProfile)
	if !ok1 || !ok2 || !usable(f, t) {
		return 0, false
	}
	return f.Score(t, m.similarity), true
}
