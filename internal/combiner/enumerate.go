// Package combiner enumerates compatible subsets of predictions, evaluates
// their combined likelihood and picks the most significant or most
// constraining combination.
package combiner

import (
	"sort"

	"gocombine/internal/compat"
)

// IndexSet is an ascending list of member indices into a compat.Matrix.
type IndexSet []int

// Contains reports whether idx is in the set.
func (s IndexSet) Contains(idx int) bool {
	i := sort.SearchInts(s, idx)
	return i < len(s) && s[i] == idx
}

// SubsetOf reports whether every element of s is in other. Both sets must
// be ascending.
func (s IndexSet) SubsetOf(other IndexSet) bool {
	if len(s) > len(other) {
		return false
	}
	j := 0
	for _, v := range s {
		for j < len(other) && other[j] < v {
			j++
		}
		if j == len(other) || other[j] != v {
			return false
		}
		j++
	}
	return true
}

// Enumerate lists every pairwise-compatible subset of m's members in
// depth-first discovery order: each set is followed by its extensions with
// higher indices. A positive limit caps the number of sets returned; the
// second return value is true when the cap cut the enumeration short.
//
// The walk uses an explicit stack so deep chains of compatible predictions
// cannot exhaust the goroutine stack.
func Enumerate(m *compat.Matrix, limit int) ([]IndexSet, bool) {
	n := m.Len()
	stack := make([]IndexSet, 0, n)
	for i := n - 1; i >= 0; i-- {
		stack = append(stack, IndexSet{i})
	}

	var out []IndexSet
	for len(stack) > 0 {
		if limit > 0 && len(out) == limit {
			return out, true
		}
		set := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, set)

		last := set[len(set)-1]
		for j := n - 1; j > last; j-- {
			if !m.CompatibleWithAll(j, set) {
				continue
			}
			child := make(IndexSet, len(set)+1)
			copy(child, set)
			child[len(set)] = j
			stack = append(stack, child)
		}
	}
	return out, false
}

// Dominate drops every set that is a subset of a larger (or equal, earlier)
// set. Sets are visited largest first, keeping discovery order within a
// size, and each kept set is checked only against sets already kept. The
// result is in that visiting order.
func Dominate(sets []IndexSet) []IndexSet {
	order := make([]int, len(sets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(sets[order[a]]) > len(sets[order[b]])
	})

	kept := make([]IndexSet, 0, len(sets))
	for _, idx := range order {
		candidate := sets[idx]
		dominated := false
		for _, k := range kept {
			if candidate.SubsetOf(k) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, candidate)
		}
	}
	return kept
}
