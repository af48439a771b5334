package matching

import "math"

// ngramPad surrounds tokens so that leading and trailing n-grams differ from
// interior ones (U+2060 WORD JOINER).
const ngramPad = '\u2060'

type ngramCounts struct {
	grams map[string]int
	total int
}

// charNGrams slides a window of the given size over the token padded with
// window-1 sentinels on each side. "abcd" with window 2 yields 5 n-grams.
func charNGrams(token string, window int) ngramCounts {
	runes := make([]rune, 0, len(token)+2*(window-1))
	for i := 0; i < window-1; i++ {
		runes = append(runes, ngramPad)
	}
	runes = append(runes, []rune(token)...)
	for i := 0; i < window-1; i++ {
		runes = append(runes, ngramPad)
	}
	out := ngramCounts{grams: make(map[string]int, len(runes))}
	for i := 0; i+window <= len(runes); i++ {
		out.grams[string(runes[i:i+window])]++
		out.total++
	}
	return out
}

// overlap is the multiset intersection size of two n-gram sets.
func (a ngramCounts) overlap(b ngramCounts) int {
	if len(b.grams) < len(a.grams) {
		a, b = b, a
	}
	common := 0
	for g, n := range a.grams {
		common += min(n, b.grams[g])
	}
	return common
}

type ngramToken struct {
	token  string
	grams  ngramCounts
	weight float64
}

// NGramProfile is the profile used for character n-gram matching.
type NGramProfile struct {
	record Record
	counts TokenCounts
	tokens []ngramToken
	norm   float64
}

// Record returns the source record.
func (p *NGramProfile) Record() Record { return p.record }

// Norm returns the profile normalizer.
func (p *NGramProfile) Norm() float64 { return p.norm }

// Score pairs every from token with every to token, scores each pair by the
// normalized n-gram overlap scaled by both weights, and combines them with
// greedyAssign.
func (p *NGramProfile) Score(to *NGramProfile) float64 {
	pairs := make([]tokenPair, 0, len(p.tokens)*len(to.tokens))
	for _, f := range p.tokens {
		for _, t := range to.tokens {
			sim := float64(f.grams.overlap(t.grams)) / math.Sqrt(float64(f.grams.total)*float64(t.grams.total))
			pairs = append(pairs, tokenPair{
				score: sim * f.weight * t.weight,
				from:  f.token,
				to:    t.token,
			})
		}
	}
	return greedyAssign(pairs, p.counts, to.counts) / (p.norm * to.norm)
}

type ngramMatcher struct {
	weights *Weights
	window  int
}

func (m *ngramMatcher) Mode() Mode { return NGramMode(m.window) }

func (m *ngramMatcher) Profile(doc Document) Profile {
	tokens := sortedTokens(doc.Tokens)
	p := &NGramProfile{
		record: doc.Record,
		counts: doc.Tokens,
		tokens: make([]ngramToken, len(tokens)),
		norm:   profileNorm(doc.Tokens, tokens, m.weights),
	}
	for i, t := range tokens {
		p.tokens[i] = ngramToken{
			token:  t,
			grams:  charNGrams(t, m.window),
			weight: m.weights.Lookup(t),
		}
	}
	return p
}

func (m *ngramMatcher) Score(from, to Profile) (float64, bool) {
	f, ok1 := from.(*NGramProfile)
	t, ok2 := to.(*NGramProfile)
	if !ok1 || !ok2 || !usable(f, t) {
		return 0, false
	}
	return f.Score(t), true
}
