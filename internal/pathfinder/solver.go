// Package pathfinder ranks combinations by treating compatible analyses as
// nodes of a graph and searching for the heaviest sets of mutually
// allowed nodes.
package pathfinder

import (
	"math"
	"sort"
)

// Path is an ascending set of mutually allowed nodes and its total weight.
type Path struct {
	Nodes  []int   `json:"nodes"`
	Weight float64 `json:"weight"`
}

// better orders paths by weight, then size, then nodes lexicographically.
func better(a, b Path) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if len(a.Nodes) != len(b.Nodes) {
		return len(a.Nodes) > len(b.Nodes)
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return a.Nodes[i] < b.Nodes[i]
		}
	}
	return false
}

type search struct {
	weights []float64
	allowed func(i, j int) bool
	limit   int
	usable  []bool
	// suffix[i] is the sum of positive usable weights with index >= i.
	suffix []float64
	best   []Path
}

// TopPaths returns up to n heaviest paths. Only paths that cannot be
// extended by another positive-weight node are reported, so subsets of a
// reported path never crowd it out. Nodes with a NaN or infinite weight
// are never used.
func TopPaths(weights []float64, allowed func(i, j int) bool, n int) []Path {
	if n < 1 || len(weights) == 0 {
		return nil
	}
	s := &search{
		weights: weights,
		allowed: allowed,
		limit:   n,
		usable:  make([]bool, len(weights)),
		suffix:  make([]float64, len(weights)+1),
	}
	for i, w := range weights {
		s.usable[i] = !math.IsNaN(w) && !math.IsInf(w, 0)
	}
	for i := len(weights) - 1; i >= 0; i-- {
		s.suffix[i] = s.suffix[i+1]
		if s.usable[i] && weights[i] > 0 {
			s.suffix[i] += weights[i]
		}
	}
	for i := range weights {
		if s.usable[i] {
			s.extend([]int{i}, weights[i])
		}
	}
	return s.best
}

func (s *search) compatible(idx int, nodes []int) bool {
	for _, n := range nodes {
		if n == idx || !s.allowed(n, idx) {
			return false
		}
	}
	return true
}

func (s *search) maximal(nodes []int) bool {
	for i, w := range s.weights {
		if s.usable[i] && w > 0 && s.compatible(i, nodes) {
			return false
		}
	}
	return true
}

func (s *search) worst() float64 {
	if len(s.best) < s.limit {
		return math.Inf(-1)
	}
	return s.best[len(s.best)-1].Weight
}

func (s *search) record(nodes []int, weight float64) {
	p := Path{Nodes: append([]int(nil), nodes...), Weight: weight}
	at := sort.Search(len(s.best), func(i int) bool { return better(p, s.best[i]) })
	if at >= s.limit {
		return
	}
	s.best = append(s.best, Path{})
	copy(s.best[at+1:], s.best[at:])
	s.best[at] = p
	if len(s.best) > s.limit {
		s.best = s.best[:s.limit]
	}
}

func (s *search) extend(nodes []int, weight float64) {
	last := nodes[len(nodes)-1]
	if weight+s.suffix[last+1] < s.worst() {
		return
	}
	if s.maximal(nodes) {
		s.record(nodes, weight)
	}
	for j := last + 1; j < len(s.weights); j++ {
		if !s.usable[j] || !s.compatible(j, nodes) {
			continue
		}
		s.extend(append(nodes, j), weight+s.weights[j])
	}
}
