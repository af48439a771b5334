package matching

import (
	"container/heap"
	"fmt"
	"math"
)

// TieRule decides whether an element that missed the cutoff is close enough
// to the current K-th best to be kept as well.
type TieRule struct {
	epsilon float64
	enabled bool
}

// NoTies keeps exactly the K best elements.
func NoTies() TieRule { return TieRule{} }

// WithinEpsilon keeps elements whose score is within eps of the cutoff.
func WithinEpsilon(eps float64) TieRule { return TieRule{epsilon: eps, enabled: true} }

// Tied reports whether two scores are tied under the rule.
func (r TieRule) Tied(a, b float64) bool {
	return r.enabled && math.Abs(a-b) <= r.epsilon
}

// Epsilon returns the tolerance and whether ties are enabled at all.
func (r TieRule) Epsilon() (float64, bool) {
	return r.epsilon, r.enabled
}

func (r TieRule) String() string {
	if !r.enabled {
		return "none"
	}
	return fmt.Sprintf("within %g", r.epsilon)
}

// minHeap is a container/heap min-heap ordered by score.
type minHeap[T any] struct {
	items []T
	score func(T) float64
}

func (h *minHeap[T]) Len() int           { return len(h.items) }
func (h *minHeap[T]) Less(i, j int) bool { return h.score(h.items[i]) < h.score(h.items[j]) }
func (h *minHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *minHeap[T]) Push(x any)         { h.items = append(h.items, x.(T)) }
func (h *minHeap[T]) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	var zero T
	h.items[n-1] = zero
	h.items = h.items[:n-1]
	return x
}

func (h *minHeap[T]) peek() T { return h.items[0] }

// descending empties the heap, best first.
func (h *minHeap[T]) descending() []T {
	out := make([]T, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(T)
	}
	return out
}

// Selector retains the K best elements of a stream plus any elements tied
// with the K-th best under its TieRule. A Selector is not safe for
// concurrent use; each worker owns its own.
type Selector[T any] struct {
	k     int
	rule  TieRule
	score func(T) float64
	main  *minHeap[T]
	ties  *minHeap[T]
}

// NewSelector returns a selector keeping k elements. k below 1 is treated as 1.
func NewSelector[T any](k int, rule TieRule, score func(T) float64) *Selector[T] {
	if k < 1 {
		k = 1
	}
	return &Selector[T]{
		k:     k,
		rule:  rule,
		score: score,
		main:  &minHeap[T]{items: make([]T, 0, k+1), score: score},
		ties:  &minHeap[T]{score: score},
	}
}

// Push offers an element in O(log K) amortized time.
func (s *Selector[T]) Push(x T) {
	if s.main.Len() < s.k {
		heap.Push(s.main, x)
		return
	}
	cutoff := s.score(s.main.peek())
	v := s.score(x)
	switch {
	case v > cutoff:
		heap.Push(s.main, x)
		heap.Push(s.ties, heap.Pop(s.main))
		s.cleanTies()
	case s.rule.Tied(cutoff, v):
		heap.Push(s.ties, x)
		s.cleanTies()
	}
}

// cleanTies drops tie candidates that are no longer tied with the cutoff.
func (s *Selector[T]) cleanTies() {
	cutoff := s.score(s.main.peek())
	for s.ties.Len() > 0 && !s.rule.Tied(cutoff, s.score(s.ties.peek())) {
		heap.Pop(s.ties)
	}
}

// Len returns the number of retained elements.
func (s *Selector[T]) Len() int {
	return s.main.Len() + s.ties.Len()
}

// Main returns the top-K elements best first without consuming the selector.
func (s *Selector[T]) Main() []T {
	return snapshot(s.main).descending()
}

// Ties returns the retained tied elements best first without consuming the selector.
func (s *Selector[T]) Ties() []T {
	return snapshot(s.ties).descending()
}

// Drain returns the top-K elements best first followed by the tied elements
// best first, and resets the selector.
func (s *Selector[T]) Drain() []T {
	return append(s.main.descending(), s.ties.descending()...)
}

func snapshot[T any](h *minHeap[T]) *minHeap[T] {
	items := make([]T, len(h.items))
	copy(items, h.items)
	return &minHeap[T]{items: items, score: h.score}
}
