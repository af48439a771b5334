package matching

import (
	"fmt"
	"math"
)

// Weights is the inverse document frequency table built from the to
// collection. It is read-only after construction and safe for concurrent use.
type Weights struct {
	idf     map[string]float64
	missing float64
	docs    int
}

// NewWeights computes idf(t) = ln(N) - ln(df(t)) where df ignores how often a
// token repeats inside one document. Tokens never seen get ln(N).
func NewWeights(docs []TokenCounts) (*Weights, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("build weights: %w", ErrEmptyReference)
	}
	df := make(map[string]int)
	for _, doc := range docs {
		for token, count := range doc {
			if count > 0 {
				df[token]++
			}
		}
	}
	lnDocs := math.Log(float64(len(docs)))
	idf := make(map[string]float64, len(df))
	for token, n := range df {
		idf[token] = lnDocs - math.Log(float64(n))
	}
	return &Weights{idf: idf, missing: lnDocs, docs: len(docs)}, nil
}

// Lookup returns the weight of a token.
func (w *Weights) Lookup(token string) float64 {
	if v, ok := w.idf[token]; ok {
		return v
	}
	return w.missing
}

// Missing returns the weight assigned to tokens absent from the corpus.
func (w *Weights) Missing() float64 {
	return w.missing
}

// Documents returns the corpus size N.
func (w *Weights) Documents() int {
	return w.docs
}

// Vocabulary returns the number of distinct tokens seen in the corpus.
func (w *Weights) Vocabulary() int {
	return len(w.idf)
}
