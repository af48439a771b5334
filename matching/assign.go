package matching

import "sort"

// tokenPair is one candidate pairing of a from token with a to token.
type tokenPair struct {
	score float64
	from  string
	to    string
}

// greedyAssign combines token pair scores into one record pair score. It
// repeatedly takes the best remaining pair and retires a token once it has
// been used as many times as it occurs in its record. This is a greedy
// matching, not an optimal one, and past choices are never revisited.
//
// Equal scores are taken in lexicographic (from, to) order so that results do
// not depend on the input order of pairs.
func greedyAssign(pairs []tokenPair, fromCounts, toCounts TokenCounts) float64 {
	// Ascending, so the best pair sits at the end and pops in O(1).
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.from != b.from {
			return a.from > b.from
		}
		return a.to > b.to
	})

	fromUsed := make(map[string]int, len(fromCounts))
	toUsed := make(map[string]int, len(toCounts))
	var total float64
	for len(pairs) > 0 {
		best := pairs[len(pairs)-1]
		pairs = pairs[:len(pairs)-1]
		total += best.score

		fromUsed[best.from]++
		toUsed[best.to]++
		if fromUsed[best.from] >= fromCounts[best.from] {
			pairs = dropPairs(pairs, func(p tokenPair) bool { return p.from == best.from })
		}
		if toUsed[best.to] >= toCounts[best.to] {
			pairs = dropPairs(pairs, func(p tokenPair) bool { return p.to == best.to })
		}
	}
	return total
}

// dropPairs filters pairs in place, preserving order.
func dropPairs(pairs []tokenPair, drop func(tokenPair) bool) []tokenPair {
	kept := pairs[:0]
	for _, p := range pairs {
		if !drop(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
