package pathfinder

import (
	"math"
	"math/rand/v2"
	"testing"

	"gocombine/domain/prediction"
	"gocombine/internal/compat"
	"gocombine/internal/likelihood"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForceBest scans every subset of the nodes.
func bruteForceBest(weights []float64, allowed func(i, j int) bool) float64 {
	n := len(weights)
	best := math.Inf(-1)
	for mask := 1; mask < 1<<n; mask++ {
		ok := true
		w := 0.0
		for i := 0; i < n && ok; i++ {
			if mask&(1<<i) == 0 {
				continue
			}
			w += weights[i]
			for j := i + 1; j < n; j++ {
				if mask&(1<<j) != 0 && !allowed(i, j) {
					ok = false
					break
				}
			}
		}
		if ok && w > best {
			best = w
		}
	}
	return best
}

func TestTopPaths_MatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.IntN(8)
		weights := make([]float64, n)
		for i := range weights {
			weights[i] = rng.Float64() * 5
		}
		adj := make([][]bool, n)
		for i := range adj {
			adj[i] = make([]bool, n)
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				ok := rng.Float64() < 0.6
				adj[i][j], adj[j][i] = ok, ok
			}
		}
		allowed := func(i, j int) bool { return adj[i][j] }

		paths := TopPaths(weights, allowed, 3)
		require.NotEmpty(t, paths)
		assert.InDelta(t, bruteForceBest(weights, allowed), paths[0].Weight, 1e-9, "trial %d", trial)
		for k := 1; k < len(paths); k++ {
			assert.GreaterOrEqual(t, paths[k-1].Weight, paths[k].Weight)
		}
	}
}

func TestTopPaths_OnlyMaximalPaths(t *testing.T) {
	// 0-1 and 1-2 allowed, 0-2 not.
	allowed := func(i, j int) bool { return i+j != 2 || i == j }
	paths := TopPaths([]float64{1, 2, 3}, allowed, 10)
	require.Len(t, paths, 2)
	assert.Equal(t, []int{1, 2}, paths[0].Nodes)
	assert.Equal(t, 5.0, paths[0].Weight)
	assert.Equal(t, []int{0, 1}, paths[1].Nodes)
}

func TestTopPaths_SkipsUnusableWeights(t *testing.T) {
	all := func(int, int) bool { return true }
	paths := TopPaths([]float64{1, math.NaN(), 2}, all, 1)
	require.Len(t, paths, 1)
	assert.Equal(t, []int{0, 2}, paths[0].Nodes)
	assert.Nil(t, TopPaths(nil, all, 1))
	assert.Nil(t, TopPaths([]float64{1}, all, 0))
}

func bind(t *testing.T, id string, observedUL, expectedUL, signal float64) prediction.Member {
	t.Helper()
	b, err := likelihood.Bind(prediction.MustNew(prediction.Spec{
		AnalysisID:  id,
		Sqrts:       13,
		ObservedUL:  observedUL,
		ExpectedUL:  expectedUL,
		SignalYield: signal,
	}), likelihood.DefaultOptions())
	require.NoError(t, err)
	return b
}

func TestAdapter_TopCombinations(t *testing.T) {
	m, err := compat.Build([]prediction.Member{
		bind(t, "CMS-SUS-19-006", 7, 5, 1),
		bind(t, "CMS-SUS-16-050", 15, 10, 1),
		bind(t, "ATLAS-SUSY-2018-32", 8, 6, 1),
	}, compat.Conservative{})
	require.NoError(t, err)

	a := NewAdapter(nil, nil)
	weights := a.Weights(m)
	require.Len(t, weights, 3)
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0)
	}

	results, err := a.TopCombinations(m, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, 2, r.Size())
		assert.True(t, r.Contains("ATLAS-SUSY-2018-32"))
		assert.GreaterOrEqual(t, r.Z, 0.0)
	}
}
